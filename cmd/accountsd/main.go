// Command accountsd runs the account administration API.
package main

import "os"

func main() {
	os.Exit(execute())
}
