package main

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	inputFile        string
	outputFile       string
	platformOverride string
	generateTimeout  time.Duration
	showInstructions bool
	longFormat       bool
)

var rootCmd = &cobra.Command{
	Use:   "flowctl",
	Short: "Automation engine toolbox: corpus, schemas, one-shot generation",
	Long:  "flowctl inspects the embedded knowledge corpus and schemas, and runs the plan-and-generate pipeline once without the queue or the database",
}

func init() {
	registerCorpusCommand(rootCmd)
	registerSchemaCommand(rootCmd)
	registerGenerateCommand(rootCmd)
}
