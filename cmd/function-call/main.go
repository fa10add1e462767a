// Command function-call runs tool-calling conversations against an
// OpenAI-compatible chat completion API.
package main

func main() {
	Execute()
}
