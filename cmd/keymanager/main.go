// Command keymanager inspects and edits the key store of the file service:
// resolving file keys through shares, and reading or writing file, private
// and public keys. Keys travel hex encoded on stdin and stdout.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"

	"github.com/rbaliyan/keymanager"
)

type cli struct {
	app    *kingpin.Application
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath    *string
	root          *string
	sharingDriver *string
	sharingDSN    *string
	logLevel      *string
	verbose       *bool

	handlers map[string]func(ctx context.Context, e *env) error
}

func newCLI(stdin io.Reader, stdout, stderr io.Writer) *cli {
	c := &cli{
		app:      kingpin.New("keymanager", "Resolve and manage per-file and per-user encryption keys."),
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		handlers: make(map[string]func(context.Context, *env) error),
	}
	c.app.UsageWriter(stdout)
	c.app.ErrorWriter(stderr)

	c.configPath = c.app.Flag("config", "The configuration file.").Short('c').
		Envar("KEYMANAGER_CONFIG").String()
	c.root = c.app.Flag("root", "Override store.root.").String()
	c.sharingDriver = c.app.Flag("sharing-driver", "Override sharing.driver (sqlite3, postgres, mysql).").String()
	c.sharingDSN = c.app.Flag("sharing-dsn", "Override sharing.dsn.").String()
	c.logLevel = c.app.Flag("log-level", "Override log.level.").String()
	c.verbose = c.app.Flag("verbose", "Log at debug level.").Short('v').Bool()

	c.registerKeyCommands()
	c.registerShareCommands()
	return c
}

func (c *cli) handle(cmd *kingpin.CmdClause, fn func(ctx context.Context, e *env) error) {
	c.handlers[cmd.FullCommand()] = fn
}

func (c *cli) registerKeyCommands() {
	resolve := c.app.Command("resolve", "Show where the key of a file lives, as owner:path.")
	resolveUser := resolve.Arg("user", "Requesting identity.").Required().String()
	resolvePath := resolve.Arg("path", "File path relative to the user's files.").Required().String()
	c.handle(resolve, func(ctx context.Context, e *env) error {
		loc, err := e.manager.ResolveFileKey(ctx, keymanager.Identity(*resolveUser), *resolvePath)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.stdout, loc)
		return err
	})

	fileKey := c.app.Command("file-key", "Per-file keys.")
	fkGet := fileKey.Command("get", "Print the key of a file.")
	fkGetUser := fkGet.Arg("user", "Requesting identity.").Required().String()
	fkGetPath := fkGet.Arg("path", "File path.").Required().String()
	c.handle(fkGet, func(ctx context.Context, e *env) error {
		key, err := e.manager.ReadFileKey(ctx, keymanager.Identity(*fkGetUser), *fkGetPath)
		if err != nil {
			return err
		}
		return c.writeHex(key)
	})

	fkSet := fileKey.Command("set", "Store the key of a file, read from stdin.")
	fkSetUser := fkSet.Arg("user", "Requesting identity.").Required().String()
	fkSetPath := fkSet.Arg("path", "File path.").Required().String()
	c.handle(fkSet, func(ctx context.Context, e *env) error {
		key, err := c.readHex()
		if err != nil {
			return err
		}
		return e.manager.WriteFileKey(ctx, keymanager.Identity(*fkSetUser), *fkSetPath, key)
	})

	privateKey := c.app.Command("private-key", "Per-user private keys.")
	pkGet := privateKey.Command("get", "Print a user's private key.")
	pkGetUser := pkGet.Arg("user", "Identity.").Required().String()
	c.handle(pkGet, func(ctx context.Context, e *env) error {
		key, err := e.manager.PrivateKey(ctx, keymanager.Identity(*pkGetUser))
		if err != nil {
			return err
		}
		defer clear(key)
		return c.writeHex(key)
	})

	pkSet := privateKey.Command("set", "Store a user's private key, read from stdin.")
	pkSetUser := pkSet.Arg("user", "Identity.").Required().String()
	c.handle(pkSet, func(ctx context.Context, e *env) error {
		key, err := c.readHex()
		if err != nil {
			return err
		}
		defer clear(key)
		return e.manager.SetPrivateKey(ctx, keymanager.Identity(*pkSetUser), key)
	})

	publicKey := c.app.Command("public-key", "Per-user public keys.")
	pubGet := publicKey.Command("get", "Print a user's public key.")
	pubGetUser := pubGet.Arg("user", "Identity.").Required().String()
	c.handle(pubGet, func(ctx context.Context, e *env) error {
		key, err := e.manager.PublicKey(ctx, keymanager.Identity(*pubGetUser))
		if err != nil {
			return err
		}
		return c.writeHex(key)
	})

	pubSet := publicKey.Command("set", "Store a user's public key, read from stdin.")
	pubSetUser := pubSet.Arg("user", "Identity.").Required().String()
	c.handle(pubSet, func(ctx context.Context, e *env) error {
		key, err := c.readHex()
		if err != nil {
			return err
		}
		return e.manager.SetPublicKey(ctx, keymanager.Identity(*pubSetUser), key)
	})

	recipients := c.app.Command("recipients", "List the identities entitled to a file.")
	recUser := recipients.Arg("user", "Requesting identity.").Required().String()
	recPath := recipients.Arg("path", "File path.").Required().String()
	recKeys := recipients.Flag("keys", "Print each recipient's public key label and key instead.").Bool()
	c.handle(recipients, func(ctx context.Context, e *env) error {
		requester := keymanager.Identity(*recUser)
		if !*recKeys {
			ids, err := e.manager.FileRecipients(ctx, requester, *recPath)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if _, err := fmt.Fprintln(c.stdout, id); err != nil {
					return err
				}
			}
			return nil
		}

		keys, err := e.manager.PublicKeysForFile(ctx, requester, *recPath)
		if err != nil {
			return err
		}
		labels := make([]string, 0, len(keys))
		for label := range keys {
			labels = append(labels, label)
		}
		slices.SortFunc(labels, func(a, b string) int {
			if len(a) != len(b) {
				return len(a) - len(b)
			}
			return strings.Compare(a, b)
		})
		for _, label := range labels {
			if _, err := fmt.Fprintf(c.stdout, "%s %s\n", label, hex.EncodeToString(keys[label])); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *cli) registerShareCommands() {
	initDB := c.app.Command("init-db", "Create the sharing table.")
	c.handle(initDB, func(ctx context.Context, e *env) error {
		return e.initDB(ctx)
	})

	share := c.app.Command("share", "Share records.")
	add := share.Command("add", "Record that owner's file is shared with a user.")
	owner := add.Arg("owner", "Owning identity.").Required().String()
	source := add.Arg("source", "Path relative to the owner's files.").Required().String()
	sharedWith := add.Arg("shared-with", "Recipient identity.").Required().String()
	target := add.Arg("target", "Path relative to the recipient's files; defaults to source.").String()
	c.handle(add, func(ctx context.Context, e *env) error {
		if e.shares == nil {
			return fmt.Errorf("share add: sharing.driver is not configured")
		}
		layout := e.manager.Layout()
		tgt := *target
		if tgt == "" {
			tgt = *source
		}
		rec := keymanager.ShareRecord{
			Owner:      keymanager.Identity(*owner),
			Source:     layout.FilePath(keymanager.Identity(*owner), strings.TrimLeft(*source, "/")),
			Target:     layout.FilePath(keymanager.Identity(*sharedWith), strings.TrimLeft(tgt, "/")),
			SharedWith: keymanager.Identity(*sharedWith),
		}
		for _, id := range []keymanager.Identity{rec.Owner, rec.SharedWith} {
			if err := id.Validate(); err != nil {
				return err
			}
		}
		return e.shares.Insert(ctx, rec)
	})
}

// run parses args and executes the selected command.
func (c *cli) run(ctx context.Context, args []string) error {
	command, err := c.app.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(*c.configPath)
	if err != nil {
		return err
	}
	c.applyOverrides(cfg)

	log, err := newLogger(cfg.Log, c.stderr)
	if err != nil {
		return err
	}

	handler, ok := c.handlers[command]
	if !ok {
		return fmt.Errorf("unknown command %q", command)
	}

	e, err := openEnv(cfg, log)
	if err != nil {
		return err
	}
	defer e.close()

	if err := handler(ctx, e); err != nil {
		log.WithFields(logrus.Fields{"command": command}).WithError(err).Debug("command failed")
		return err
	}
	return nil
}

func (c *cli) applyOverrides(cfg *Config) {
	if *c.root != "" {
		cfg.Store.Root = *c.root
	}
	if *c.sharingDriver != "" {
		cfg.Sharing.Driver = *c.sharingDriver
	}
	if *c.sharingDSN != "" {
		cfg.Sharing.DSN = *c.sharingDSN
	}
	if *c.logLevel != "" {
		cfg.Log.Level = *c.logLevel
	}
	if *c.verbose {
		cfg.Log.Level = "debug"
	}
}

func (c *cli) readHex() ([]byte, error) {
	data, err := io.ReadAll(c.stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("stdin is not a hex encoded key: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("stdin holds no key")
	}
	return key, nil
}

func (c *cli) writeHex(key []byte) error {
	_, err := fmt.Fprintln(c.stdout, hex.EncodeToString(key))
	return err
}

func main() {
	c := newCLI(os.Stdin, os.Stdout, os.Stderr)
	if err := c.run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "keymanager: %v\n", err)
		os.Exit(1)
	}
}
