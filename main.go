/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>

*/
package main

import "github.com/szclsya/mpdris2/cmd"

func main() {
	cmd.Execute()
}
