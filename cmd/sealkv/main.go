// Copyright 2026 The sealkv Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/sealkv/sealkv"
)

func main() {
	app := &cli.App{
		Name:  "sealkv",
		Usage: "Encrypted transactional key-value store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
			&cli.StringFlag{
				Name:     "db",
				Aliases:  []string{"d"},
				Usage:    "Path to the store directory",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "encrypted",
				Aliases: []string{"e"},
				Usage:   "Prompt for the storage password and enable encryption",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "new",
				Usage:  "Initialize a fresh store",
				Action: newCommand,
			},
			{
				Name:      "write",
				Usage:     "Store a value under a key",
				ArgsUsage: "<key> <value>",
				Action:    writeCommand,
			},
			{
				Name:      "read",
				Usage:     "Read the value stored under a key",
				ArgsUsage: "<key>",
				Action:    readCommand,
			},
			{
				Name:      "delete",
				Usage:     "Remove a key",
				ArgsUsage: "<key>",
				Action:    deleteCommand,
			},
			{
				Name:   "keys",
				Usage:  "List all keys",
				Action: keysCommand,
			},
			{
				Name:      "prefix",
				Usage:     "List keys starting with a prefix",
				ArgsUsage: "<prefix>",
				Action:    prefixCommand,
			},
			{
				Name:      "contains",
				Usage:     "Check whether a key exists",
				ArgsUsage: "<key>",
				Action:    containsCommand,
			},
			{
				Name:   "backup",
				Usage:  "Export the store encrypted under a backup password",
				Flags:  backupFlags(),
				Action: backupCommand,
			},
			{
				Name:   "restore",
				Usage:  "Import a backup into the store",
				Flags:  backupFlags(),
				Action: restoreCommand,
			},
			{
				Name:   "chpasswd",
				Usage:  "Change the storage password",
				Action: chpasswdCommand,
			},
			{
				Name:  "chbackuppass",
				Usage: "Change the password sealing a backup's DEK file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dek",
						Usage:    "Path to the DEK file",
						Required: true,
					},
				},
				Action: chbackuppassCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", c.String("log-level"))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func backupFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "backup",
			Usage:    "Path to the backup payload file",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "dek",
			Usage:    "Path to the DEK file",
			Required: true,
		},
	}
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

func config(c *cli.Context) (sealkv.Config, error) {
	cfg := sealkv.Config{Path: c.String("db")}
	if c.Bool("encrypted") {
		password, err := promptPassword("Storage password: ")
		if err != nil {
			return cfg, err
		}
		cfg.Password = password
	}
	return cfg, nil
}

func openStorage(c *cli.Context) (*sealkv.Storage, error) {
	cfg, err := config(c)
	if err != nil {
		return nil, err
	}
	return sealkv.Open(cfg)
}

func arg(c *cli.Context, i int, name string) (string, error) {
	if c.Args().Len() <= i {
		return "", fmt.Errorf("missing <%s> argument", name)
	}
	return c.Args().Get(i), nil
}

func newCommand(c *cli.Context) error {
	cfg, err := config(c)
	if err != nil {
		return err
	}
	store, err := sealkv.New(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	fmt.Printf("Created store at %s\n", cfg.Path)
	return nil
}

func writeCommand(c *cli.Context) error {
	key, err := arg(c, 0, "key")
	if err != nil {
		return err
	}
	value, err := arg(c, 1, "value")
	if err != nil {
		return err
	}

	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Write(key, []byte(value))
}

func readCommand(c *cli.Context) error {
	key, err := arg(c, 0, "key")
	if err != nil {
		return err
	}

	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer store.Close()

	value, err := store.Read(key)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", value)
	return nil
}

func deleteCommand(c *cli.Context) error {
	key, err := arg(c, 0, "key")
	if err != nil {
		return err
	}

	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Delete(key)
}

func keysCommand(c *cli.Context) error {
	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.Keys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Println(key)
	}
	return nil
}

func prefixCommand(c *cli.Context) error {
	prefix, err := arg(c, 0, "prefix")
	if err != nil {
		return err
	}

	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.PrefixKeys(prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Println(key)
	}
	return nil
}

func containsCommand(c *cli.Context) error {
	key, err := arg(c, 0, "key")
	if err != nil {
		return err
	}

	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer store.Close()

	ok, err := store.Has(key)
	if err != nil {
		return err
	}
	if ok {
		fmt.Printf("%s exists\n", key)
	} else {
		fmt.Printf("%s does not exist\n", key)
	}
	return nil
}

func backupCommand(c *cli.Context) error {
	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer store.Close()

	password, err := promptPassword("Backup password: ")
	if err != nil {
		return err
	}
	return store.Backup(c.String("backup"), c.String("dek"), password)
}

func restoreCommand(c *cli.Context) error {
	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer store.Close()

	password, err := promptPassword("Backup password: ")
	if err != nil {
		return err
	}
	return store.Restore(c.String("backup"), c.String("dek"), password)
}

func chpasswdCommand(c *cli.Context) error {
	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer store.Close()

	oldPassword, err := promptPassword("Current password: ")
	if err != nil {
		return err
	}
	newPassword, err := promptPassword("New password: ")
	if err != nil {
		return err
	}
	return store.ChangePassword(oldPassword, newPassword)
}

func chbackuppassCommand(c *cli.Context) error {
	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer store.Close()

	oldPassword, err := promptPassword("Current backup password: ")
	if err != nil {
		return err
	}
	newPassword, err := promptPassword("New backup password: ")
	if err != nil {
		return err
	}
	return store.ChangeBackupPassword(c.String("dek"), oldPassword, newPassword)
}
