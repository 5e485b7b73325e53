package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "run":
		cmdRun(args)
	case "plan":
		cmdPlan(args)
	case "create":
		cmdCreate(args)
	case "edit":
		cmdEdit(args)
	case "list":
		cmdList(args)
	case "export":
		cmdExport(args)
	case "import":
		cmdImport(args)
	case "add-content":
		cmdAddContent(args)
	case "serve":
		cmdServe(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `clipsync - short-form clip sourcing, scheduling and publishing

Usage:
  clipsync run [flags] [account-id...]     Plan, produce and publish clips
  clipsync plan [flags] <account-id>       Show open slots and rendered clips (dry run)
  clipsync create [flags]                  Create an account
  clipsync edit [flags] <account-id>       Change an account's settings
  clipsync list [flags]                    List accounts
  clipsync export [flags] <account-id>     Write an account as YAML
  clipsync import [flags] <file>           Read an account from YAML
  clipsync add-content [flags] <url...>    Download secondary filler videos
  clipsync serve [flags]                   Serve the read-only status API
  clipsync help                            Show this help message

Examples:
  clipsync create --id me@example.com --channel @creator --schedule 09:00 --schedule 18:30
  clipsync edit --captions --overlay=false me@example.com
  clipsync plan me@example.com
  clipsync run --all
  clipsync export me@example.com > me.yaml
  clipsync add-content https://www.youtube.com/watch?v=dQw4w9WgXcQ

Every command accepts --config <file>.
For help on specific command: clipsync <command> -h
`)
}

// fatalf prints an error and exits with status 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
