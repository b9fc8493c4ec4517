package main

import "github.com/goplus/llpm/cmd/llpm/internal"

func main() {
	internal.Execute()
}
