package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/andy6609/chat-relay/internal/client"
)

var (
	addr        string
	dialTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "chat-client",
	Short:         "Console client for the chat relay",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), dialTimeout)
		c, err := client.Dial(ctx, addr)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to server: %w", err)
		}
		defer c.Close()

		stdin := bufio.NewReader(os.Stdin)
		if err := authenticate(c, stdin); err != nil {
			return err
		}
		return chat(c, stdin)
	},
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "localhost:5555", "relay address")
	rootCmd.Flags().DurationVar(&dialTimeout, "timeout", 10*time.Second, "connection timeout")
}

// authenticate runs the sign up / login menu until one succeeds.
func authenticate(c *client.Client, stdin *bufio.Reader) error {
	for {
		fmt.Println("1. Sign Up")
		fmt.Println("2. Login")
		fmt.Print("Enter choice: ")
		choice, err := prompt(stdin)
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			fmt.Print("Enter new username (3-20 characters, alphanumeric only): ")
			username, err := prompt(stdin)
			if err != nil {
				return err
			}
			fmt.Print("Enter new password (8+ characters, must include letters and numbers): ")
			password, err := readPassword(stdin)
			if err != nil {
				return err
			}
			err = c.Signup(username, password)
			if report(err, "SIGNUP_SUCCESS") {
				return nil
			}
			if err != nil && !errors.Is(err, client.ErrRejected) {
				return err
			}
		case "2":
			fmt.Print("Enter username: ")
			username, err := prompt(stdin)
			if err != nil {
				return err
			}
			fmt.Print("Enter password: ")
			password, err := readPassword(stdin)
			if err != nil {
				return err
			}
			err = c.Login(username, password)
			if report(err, "LOGIN_SUCCESS") {
				return nil
			}
			if err != nil && !errors.Is(err, client.ErrRejected) {
				return err
			}
		default:
			fmt.Println("Invalid choice. Please try again.")
		}
	}
}

// report prints the outcome of an auth attempt and reports success.
func report(err error, success string) bool {
	if err == nil {
		fmt.Println(client.DescribeReply(success))
		return true
	}
	var rejected *client.RejectedError
	if errors.As(err, &rejected) {
		fmt.Println(client.DescribeReply(rejected.Reply))
	}
	return false
}

// chat prints relay lines while forwarding stdin until /exit or disconnect.
func chat(c *client.Client, stdin *bufio.Reader) error {
	fmt.Println("Type /help for commands.")

	incoming := make(chan error, 1)
	go func() {
		for {
			line, err := c.ReadLine()
			if err != nil {
				incoming <- err
				return
			}
			fmt.Println(line)
		}
	}()

	outgoing := make(chan error, 1)
	go func() {
		for {
			line, err := prompt(stdin)
			if err != nil {
				outgoing <- err
				return
			}
			if err := c.Send(line); err != nil {
				outgoing <- err
				return
			}
			if strings.EqualFold(line, "/exit") {
				outgoing <- nil
				return
			}
		}
	}()

	select {
	case err := <-incoming:
		if errors.Is(err, io.EOF) {
			fmt.Println("Disconnected from server.")
			return nil
		}
		return err
	case err := <-outgoing:
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		// Give the relay a moment to answer /exit before closing.
		select {
		case <-incoming:
		case <-time.After(time.Second):
		}
		return nil
	}
}

func prompt(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword hides input when stdin is a terminal.
func readPassword(r *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(r)
	}
	pw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
