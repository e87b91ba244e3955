package main

import "github.com/ValentinKolb/dJournal/cmd"

func main() {
	cmd.Execute()
}
