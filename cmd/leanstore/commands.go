package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/leanstore/leanstore.go"
)

type queryFlags struct {
	where   string
	order   string
	keys    []string
	include []string
	limit   int
	skip    int
}

func (f *queryFlags) register(cmd *cobra.Command, paging bool) {
	cmd.Flags().StringVar(&f.where, "where", "", `constraints as JSON, e.g. '{"views":{"$gt":10}}'`)
	if !paging {
		return
	}
	cmd.Flags().StringVar(&f.order, "order", "", "comma separated sort keys, '-' prefix for descending")
	cmd.Flags().StringSliceVar(&f.keys, "keys", nil, "fields to return")
	cmd.Flags().StringSliceVar(&f.include, "include", nil, "pointer fields to expand")
	cmd.Flags().IntVar(&f.limit, "limit", -1, "maximum number of results")
	cmd.Flags().IntVar(&f.skip, "skip", 0, "number of results to skip")
}

func (f *queryFlags) build(c *leanstore.Client, className string) (*leanstore.Query, error) {
	q := c.Query(className)
	if f.where != "" {
		var where map[string]any
		if err := json.Unmarshal([]byte(f.where), &where); err != nil {
			return nil, fmt.Errorf("parse --where: %w", err)
		}
		q.Where(where)
	}
	for _, key := range strings.Split(f.order, ",") {
		key = strings.TrimSpace(key)
		switch {
		case key == "":
		case strings.HasPrefix(key, "-"):
			q.AddDescending(key[1:])
		default:
			q.AddAscending(key)
		}
	}
	if len(f.keys) > 0 {
		q.Select(f.keys...)
	}
	if len(f.include) > 0 {
		q.Include(f.include...)
	}
	if f.limit >= 0 {
		q.Limit(f.limit)
	}
	return q.Skip(f.skip), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDateCmd(params *cliParams) *cobra.Command {
	return &cobra.Command{
		Use:   "date",
		Short: "Print the store's current time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := params.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close(cmd.Context())
			d, err := c.ServerDate(cmd.Context()).Await(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), d.Format(time.RFC3339Nano))
			return err
		},
	}
}

func newGetCmd(params *cliParams) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "get CLASS ID",
		Short: "Print one object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := params.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close(cmd.Context())
			q, err := flags.build(c, args[0])
			if err != nil {
				return err
			}
			o, err := q.Get(cmd.Context(), args[1]).Await(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, o)
		},
	}
	cmd.Flags().StringSliceVar(&flags.keys, "keys", nil, "fields to return")
	cmd.Flags().StringSliceVar(&flags.include, "include", nil, "pointer fields to expand")
	flags.limit = -1
	return cmd
}

func newFindCmd(params *cliParams) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "find CLASS",
		Short: "Print the objects matching a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := params.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close(cmd.Context())
			q, err := flags.build(c, args[0])
			if err != nil {
				return err
			}
			objects, err := q.Find(cmd.Context()).Await(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, objects)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newCountCmd(params *cliParams) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "count CLASS",
		Short: "Print the number of objects matching a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := params.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close(cmd.Context())
			q, err := flags.build(c, args[0])
			if err != nil {
				return err
			}
			n, err := q.Count(cmd.Context()).Await(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
	flags.register(cmd, false)
	flags.limit = -1
	return cmd
}
