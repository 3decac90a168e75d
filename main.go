package main

import "github.com/ValentinKolb/ibgw/cmd"

func main() {
	cmd.Execute()
}
