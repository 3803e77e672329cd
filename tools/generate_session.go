//go:build ignore

// Prints a gogram string session for an assistant account. Put it in STRING1..STRING10.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/Laky-64/gologging"
	tg "github.com/amarnathcjd/gogram/telegram"
)

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	s, _ := r.ReadString('\n')
	return strings.TrimSpace(s)
}

func main() {
	reader := bufio.NewReader(os.Stdin)

	var apiID int32
	if _, err := fmt.Sscanf(prompt(reader, "API ID: "), "%d", &apiID); err != nil {
		gologging.FatalF("Invalid API ID: %v", err)
	}
	apiHash := prompt(reader, "API hash: ")

	client, err := tg.NewClient(tg.ClientConfig{
		AppID:         apiID,
		AppHash:       apiHash,
		MemorySession: true,
	})
	if err != nil {
		gologging.FatalF("Creating the client: %v", err)
	}

	// Start asks for the phone number and login code on the terminal.
	if err := client.Start(); err != nil {
		gologging.FatalF("Logging in: %v", err)
	}
	if me := client.Me(); me != nil && me.Bot {
		gologging.Fatal("Assistants must be user accounts, not bots.")
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println(client.ExportSession())
	fmt.Println(strings.Repeat("=", 60))
	_ = client.Stop()
}
