package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	endpoint  = defaultEndpoint()
	authToken = os.Getenv("FUNDD_TOKEN")
)

func defaultEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("FUNDD_URL")); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://localhost:7080"
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "token":
		return runTokenCommand(args[1:], stdout, stderr)
	case "fund":
		return runFundCommand(args[1:], stdout, stderr)
	case "auction":
		return runAuctionCommand(args[1:], stdout, stderr)
	case "credit":
		return runCreditCommand(args[1:], stdout, stderr)
	case "balance":
		return runBalanceCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

// applyGlobalFlags strips --url and --token ahead of the command name.
func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--url" || arg == "--token":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires a value", arg)
			}
			setGlobal(arg[2:], args[i+1])
			i++
		case strings.HasPrefix(arg, "--url="):
			setGlobal("url", strings.TrimPrefix(arg, "--url="))
		case strings.HasPrefix(arg, "--token="):
			setGlobal("token", strings.TrimPrefix(arg, "--token="))
		default:
			out = append(out, args[i:]...)
			return out, nil
		}
	}
	return out, nil
}

func setGlobal(name, value string) {
	switch name {
	case "url":
		endpoint = strings.TrimRight(strings.TrimSpace(value), "/")
	case "token":
		authToken = strings.TrimSpace(value)
	}
}

func usage() string {
	return `Usage: fundctl [--url URL] [--token JWT] <command> [args]

Commands:
  token --subject ADDR [--scope S] [--ttl 1h]       sign a development JWT (FUNDD_SECRET)
  fund list                                         list funds
  fund get FUND                                     show a fund
  fund init --share-mint ADDR [--annual-fee D] [--mint-fee D] [--auction-length S] [--mandate TEXT]
  fund basket FUND                                  show basket holdings
  fund poke FUND                                    accrue TVL fees
  fund events FUND [--type T] [--after SEQ]         page committed events
  auction get FUND ID                               show auction price and status
  auction bid FUND ID --sell N --max-buy N          bid on an open auction
  auction close FUND ID                             close an auction
  credit --account ADDR --token ADDR --amount N     mint devnet tokens (operator)
  balance ACCOUNT TOKEN                             show a raw token balance`
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}
