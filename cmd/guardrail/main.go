// Package main is the entry point for the guardrail CLI.
package main

func main() {
	Execute()
}
