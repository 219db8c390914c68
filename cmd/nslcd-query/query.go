package main

import (
	"context"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/oxzi/gonslcd/internal"
)

func queryAudit(store *internal.AuditStore) ([]internal.AuditRecord, error) {
	if pflag.CommandLine.Changed("uid") {
		return store.FindByUID(auditUID)
	}
	return store.All()
}

func parseQueryID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q: %w", s, err)
	}
	return uint32(id), nil
}

func printUser(u internal.UserRecord) {
	log.Infof("%s:x:%d:%d:%s:%s", u.Name, u.UID, u.GID, u.Gecos, u.HomeDir)
}

func printGroup(g internal.GroupRecord) {
	log.Infof("%s:x:%d", g.Name, g.GID)
}

// queryDaemon performs the query given by the positional arguments.
func queryDaemon(ctx context.Context, client *internal.RequestClient, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no query was specified")
	}

	cmd, args := args[0], args[1:]
	if cmd == "ping" {
		if len(args) != 0 {
			return fmt.Errorf("ping takes no arguments")
		}
		if err := client.Ping(ctx); err != nil {
			return err
		}
		log.Info("pong")
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("%s requires exactly one argument", cmd)
	}

	switch cmd {
	case "user":
		u, err := client.User(ctx, args[0])
		if err != nil {
			return err
		}
		printUser(u)

	case "uid":
		uid, err := parseQueryID(args[0])
		if err != nil {
			return err
		}
		u, err := client.UserByID(ctx, uid)
		if err != nil {
			return err
		}
		printUser(u)

	case "group":
		g, err := client.Group(ctx, args[0])
		if err != nil {
			return err
		}
		printGroup(g)

	case "gid":
		gid, err := parseQueryID(args[0])
		if err != nil {
			return err
		}
		g, err := client.GroupByID(ctx, gid)
		if err != nil {
			return err
		}
		printGroup(g)

	default:
		return fmt.Errorf("unknown query %q", cmd)
	}

	return nil
}
