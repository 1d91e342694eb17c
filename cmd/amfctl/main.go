// Command amfctl is the §6.6 admin CLI: a flat key-value tool that
// traverses the object tree via dot-separated DN paths. It operates on the
// kvstore tunables database directly (the same embedded store §1 calls
// "a configuration database / key-value store... used only for a few
// tunables") rather than a running node's in-memory Graph, since §6.2
// config load is explicitly file-based and one-shot, with no live
// mutation RPC defined anywhere in the spec.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli"

	"github.com/amfcore/amf/kvstore"
)

var dbFlag = cli.StringFlag{
	Name:  "db",
	Usage: "path to the tunables database (or \":memory:\")",
	Value: "/var/lib/amf/tunables.db",
}

var jsonFlag = cli.BoolFlag{
	Name:  "json",
	Usage: "print machine-readable JSON instead of plain text",
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	app := cli.NewApp()
	app.Name = "amfctl"
	app.Usage = "AMF admin CLI: read/write the object tree by DN path"
	app.Flags = []cli.Flag{dbFlag, jsonFlag}
	app.Commands = []cli.Command{
		readCmd, writeKeyCmd, createObjectCmd, createObjectAndKeyCmd,
		deleteCmd, printAllCmd, trackChangesCmd, bulkLoadCmd,
	}
	if err := app.Run(os.Args); err != nil {
		color.Red("amfctl: %v", err)
		os.Exit(1)
	}
}

func openStore(c *cli.Context) (*kvstore.Store, error) {
	return kvstore.Open(c.GlobalString(dbFlag.Name))
}

// dnKey splits a "dn.key" admin path into the DN and the flat key, the
// rightmost "." separating the two (a DN itself never contains one — RDNs
// join on "," per §4.1).
func dnKey(path string) (dn, key string, ok bool) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}

var readCmd = cli.Command{
	Name:      "read",
	Usage:     "print the value stored at a DN.key path",
	ArgsUsage: "DN.KEY",
	Action: func(c *cli.Context) error {
		dn, key, ok := dnKey(c.Args().First())
		if !ok {
			return fmt.Errorf("amfctl: read: expected DN.KEY, got %q", c.Args().First())
		}
		s, err := openStore(c)
		if err != nil {
			return err
		}
		defer s.Close()
		v, ok, err := s.GetRaw(dn, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("amfctl: no such key %s.%s", dn, key)
		}
		if c.GlobalBool(jsonFlag.Name) {
			b, err := json.Marshal(map[string]string{"dn": dn, "key": key, "value": v})
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}
		fmt.Println(v)
		return nil
	},
}

var writeKeyCmd = cli.Command{
	Name:      "write-key",
	Usage:     "set the value at an existing object's DN.key path",
	ArgsUsage: "DN.KEY VALUE",
	Action: func(c *cli.Context) error {
		dn, key, ok := dnKey(c.Args().Get(0))
		if !ok || c.NArg() < 2 {
			return fmt.Errorf("amfctl: write-key: expected DN.KEY VALUE")
		}
		s, err := openStore(c)
		if err != nil {
			return err
		}
		defer s.Close()
		exists, err := s.ObjectExists(dn)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("amfctl: no such object %s (use create-object-and-key)", dn)
		}
		return s.SetRaw(dn, key, c.Args().Get(1))
	},
}

var createObjectCmd = cli.Command{
	Name:      "create-object",
	Usage:     "create an object at DN with no keys",
	ArgsUsage: "DN",
	Action: func(c *cli.Context) error {
		dn := c.Args().First()
		if dn == "" {
			return fmt.Errorf("amfctl: create-object: expected DN")
		}
		s, err := openStore(c)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.CreateObject(dn)
	},
}

var createObjectAndKeyCmd = cli.Command{
	Name:      "create-object-and-key",
	Usage:     "create an object at DN and set DN.key to VALUE",
	ArgsUsage: "DN.KEY VALUE",
	Action: func(c *cli.Context) error {
		dn, key, ok := dnKey(c.Args().Get(0))
		if !ok || c.NArg() < 2 {
			return fmt.Errorf("amfctl: create-object-and-key: expected DN.KEY VALUE")
		}
		s, err := openStore(c)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.CreateObject(dn); err != nil {
			return err
		}
		return s.SetRaw(dn, key, c.Args().Get(1))
	},
}

var deleteCmd = cli.Command{
	Name:      "delete",
	Usage:     "delete a single DN.key, or an entire DN object if only DN is given",
	ArgsUsage: "DN[.KEY]",
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return fmt.Errorf("amfctl: delete: expected DN or DN.KEY")
		}
		s, err := openStore(c)
		if err != nil {
			return err
		}
		defer s.Close()
		if dn, key, ok := dnKey(path); ok {
			if exists, err := s.ObjectExists(dn); err != nil {
				return err
			} else if exists {
				return s.DeleteRawKey(dn, key)
			}
		}
		return s.DeleteObject(path)
	},
}

var printAllCmd = cli.Command{
	Name:      "print-all",
	Usage:     "print every stored key under an optional DN prefix",
	ArgsUsage: "[DN-PREFIX]",
	Action: func(c *cli.Context) error {
		s, err := openStore(c)
		if err != nil {
			return err
		}
		defer s.Close()
		all, err := s.AllRaw(c.Args().First())
		if err != nil {
			return err
		}
		if c.GlobalBool(jsonFlag.Name) {
			b, err := json.Marshal(all)
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}
		printSorted(all)
		return nil
	},
}

var trackChangesCmd = cli.Command{
	Name:      "track-changes",
	Usage:     "poll the store and print added/changed/removed keys until interrupted",
	ArgsUsage: "[DN-PREFIX]",
	Flags: []cli.Flag{
		cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "poll interval"},
	},
	Action: func(c *cli.Context) error {
		s, err := openStore(c)
		if err != nil {
			return err
		}
		defer s.Close()
		prefix := c.Args().First()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		prev, err := s.AllRaw(prefix)
		if err != nil {
			return err
		}
		ticker := time.NewTicker(c.Duration("interval"))
		defer ticker.Stop()
		for {
			select {
			case <-sigCh:
				return nil
			case <-ticker.C:
				cur, err := s.AllRaw(prefix)
				if err != nil {
					return err
				}
				diffChanges(prev, cur)
				prev = cur
			}
		}
	},
}

var bulkLoadCmd = cli.Command{
	Name:      "bulk-load-from-file",
	Usage:     "load DN KEY VALUE triples from a file, one per line (# comments allowed)",
	ArgsUsage: "PATH",
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return fmt.Errorf("amfctl: bulk-load-from-file: expected PATH")
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("amfctl: %w", err)
		}
		defer f.Close()

		s, err := openStore(c)
		if err != nil {
			return err
		}
		defer s.Close()

		sc := bufio.NewScanner(f)
		lineNo := 0
		for sc.Scan() {
			lineNo++
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			fields := strings.SplitN(line, " ", 3)
			if len(fields) != 3 {
				return fmt.Errorf("amfctl: %s:%d: expected \"DN KEY VALUE\", got %q", path, lineNo, line)
			}
			dn, key, value := fields[0], fields[1], fields[2]
			if err := s.CreateObject(dn); err != nil {
				return err
			}
			if err := s.SetRaw(dn, key, value); err != nil {
				return err
			}
		}
		return sc.Err()
	},
}

func printSorted(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s = %s\n", k, m[k])
	}
}

func diffChanges(prev, cur map[string]string) {
	for k, v := range cur {
		if old, ok := prev[k]; !ok {
			color.Green("+ %s = %s", k, v)
		} else if old != v {
			color.Yellow("~ %s = %s -> %s", k, old, v)
		}
	}
	for k := range prev {
		if _, ok := cur[k]; !ok {
			color.Red("- %s", k)
		}
	}
}
