// main.go
package main

import "github.com/markb/linglite/cmd"

func main() {
	cmd.Execute()
}
