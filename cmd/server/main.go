package main

import "crm/internal/app/server"

func main() {
	server.Run()
}
