package main

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danmuck/amulectl/internal/client"
	"github.com/danmuck/amulectl/internal/config"
	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

type treeFetch func(*client.Client, context.Context) ([]client.Node, error)

func treeCmd(opts *rootOptions, use, short string, fetch treeFetch) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, opts.timeout, func(ctx context.Context, c *client.Client) error {
				nodes, err := fetch(c, ctx)
				if err != nil {
					return err
				}
				printTree(cmd.OutOrStdout(), nodes, 0)
				return nil
			})
		},
	}
}

func logCmd(opts *rootOptions) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the amuled log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fetch := (*client.Client).Log
			if debug {
				fetch = (*client.Client).DebugLog
			}
			return treeCmd(opts, "log", "", fetch).RunE(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "show the debug log instead")
	return cmd
}

func serversCmd(opts *rootOptions) *cobra.Command {
	cmd := treeCmd(opts, "servers", "List ed2k servers", (*client.Client).ServerList)
	action := func(use, short string, do func(*client.Client, context.Context, netip.AddrPort) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <ip:port>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				addr, err := netip.ParseAddrPort(args[0])
				if err != nil || !addr.Addr().Is4() {
					return fmt.Errorf("server address must be ipv4:port, got %q", args[0])
				}
				return opts.run(cmd, opts.timeout, func(ctx context.Context, c *client.Client) error {
					if err := do(c, ctx, addr); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: ok\n", use, addr)
					return nil
				})
			},
		}
	}
	cmd.AddCommand(
		action("connect", "Connect to a server", (*client.Client).ConnectServer),
		action("disconnect", "Disconnect from a server", (*client.Client).DisconnectServer),
		action("remove", "Remove a server from the list", (*client.Client).RemoveServer),
	)
	return cmd
}

func sharedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shared",
		Short: "List shared files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, opts.timeout, func(ctx context.Context, c *client.Client) error {
				files, err := c.SharedFiles(ctx)
				if err != nil {
					return err
				}
				printShared(cmd.OutOrStdout(), files)
				return nil
			})
		},
	}
}

func downloadsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "downloads",
		Short: "List the download queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, opts.timeout, func(ctx context.Context, c *client.Client) error {
				downloads, err := c.DownloadQueue(ctx)
				if err != nil {
					return err
				}
				printDownloads(cmd.OutOrStdout(), downloads)
				return nil
			})
		},
	}
}

func searchCmd(opts *rootOptions) *cobra.Command {
	var (
		network   string
		extension string
		wait      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the network and print results by source count",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nw, err := client.ParseNetwork(network)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			return opts.run(cmd, wait, func(ctx context.Context, c *client.Client) error {
				results, err := c.SearchAndWait(ctx, query, nw, extension)
				if err != nil {
					return err
				}
				printResults(cmd.OutOrStdout(), results)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&network, "network", "n", "global", "local, global or kad")
	cmd.Flags().StringVarP(&extension, "ext", "e", "", "file extension filter")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "how long to wait for the search to finish")
	return cmd
}

func downloadCmd(opts *rootOptions) *cobra.Command {
	var category uint32
	cmd := &cobra.Command{
		Use:   "download <hash>",
		Short: "Download a file from the current search results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := tlv.ParseHash16(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, opts.timeout, func(ctx context.Context, c *client.Client) error {
				if err := c.DownloadSearchResult(ctx, hash, category); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", hash)
				return nil
			})
		},
	}
	cmd.Flags().Uint32Var(&category, "category", 0, "category id")
	return cmd
}

func addLinkCmd(opts *rootOptions) *cobra.Command {
	var category uint32
	cmd := &cobra.Command{
		Use:   "add-link <ed2k-link>",
		Short: "Queue an ed2k link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, opts.timeout, func(ctx context.Context, c *client.Client) error {
				if err := c.AddLink(ctx, args[0], category); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "link added")
				return nil
			})
		},
	}
	cmd.Flags().Uint32Var(&category, "category", 0, "category id")
	return cmd
}

func cancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <hash>",
		Short: "Cancel a download and delete its part file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := tlv.ParseHash16(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, opts.timeout, func(ctx context.Context, c *client.Client) error {
				if err := c.CancelDownload(ctx, hash); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", hash)
				return nil
			})
		},
	}
}

func categoriesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List download categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, opts.timeout, func(ctx context.Context, c *client.Client) error {
				cats, err := c.Categories(ctx)
				if err != nil {
					return err
				}
				printCategories(cmd.OutOrStdout(), cats)
				return nil
			})
		},
	}

	var cat client.Category
	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat.Title = args[0]
			return opts.run(cmd, opts.timeout, func(ctx context.Context, c *client.Client) error {
				id, err := c.CreateCategory(ctx, cat)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created category %d\n", id)
				return nil
			})
		},
	}
	add.Flags().StringVar(&cat.Path, "path", "", "incoming directory")
	add.Flags().StringVar(&cat.Comment, "comment", "", "comment")
	add.Flags().Uint32Var(&cat.Color, "color", 0, "color as 0xRRGGBB")
	add.Flags().Uint8Var(&cat.Priority, "prio", 0, "priority")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("category id: %w", err)
			}
			return opts.run(cmd, opts.timeout, func(ctx context.Context, c *client.Client) error {
				if err := c.DeleteCategory(ctx, uint32(id)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted category %d\n", id)
				return nil
			})
		},
	}
	cmd.AddCommand(add, del)
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check amulectl config files",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a config template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote config template to %s\n", args[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Strictly validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated config at %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
