// Command openagent talks to a local OpenAI-compatible model server.
//
// Usage:
//
//	openagent query --model qwen2.5-32b "What is 2+2?"
//	openagent chat --provider ollama --model llama3.1
//	openagent batch --model m prompts.txt
//	openagent mcp-serve
//
// Settings come from --config (YAML), then OPENAGENT_* environment variables
// (a .env file in the working directory is loaded first), then flags.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
