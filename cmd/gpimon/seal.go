package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"gpimon/internal/infra/config"
)

// runSeal reads a secret from the first line of in and writes its sealed form,
// ready to paste into a gateway token entry.
func runSeal(in io.Reader, out io.Writer) error {
	key := os.Getenv(config.KeyEnv)
	if key == "" {
		return fmt.Errorf("%s is not set", config.KeyEnv)
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return fmt.Errorf("empty secret on stdin")
	}
	sealed, err := config.SealSecret(secret, key)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, sealed)
	return err
}
