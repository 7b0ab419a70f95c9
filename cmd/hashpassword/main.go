// Command hashpassword prints the argon2id hash stored in users.password_hash.
//
// Usage:
//
//	hashpassword [password]
//
// Without an argument the password is read from the terminal without echo.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/leasekeeper/internal/common"
	"github.com/dmitrijs2005/leasekeeper/internal/cryptox"
	"golang.org/x/term"
)

var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var password []byte
	switch len(args) {
	case 0:
		fmt.Fprint(stderr, "Password: ")
		p, err := readPassword()
		fmt.Fprintln(stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = p
	case 1:
		password = []byte(args[0])
	default:
		return errors.New("usage: hashpassword [password]")
	}
	defer common.WipeByteArray(password)

	if len(password) == 0 {
		return errors.New("password must not be empty")
	}

	_, err := fmt.Fprintln(stdout, cryptox.HashPassword(password))
	return err
}
