package commands

import (
	"time"

	"github.com/spf13/cobra"

	"supersorting.ai/internal/printer"
	"supersorting.ai/internal/protocol"
)

var (
	stageID      string
	stageDropoff string
	stageHolder  string
	holdHolder   string
	holdTTL      time.Duration
	releaseAs    string
	pathFrom     string
)

var stageCmd = &cobra.Command{
	Use:   "stage CELL",
	Short: "Stage an item on an empty cell",
	Example: `  sssctl stage 4,2 --dropoff 0,7
  sssctl stage 4,2 --id tote-17 --holder dock-a`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cell, err := parseCell(args[0])
		if err != nil {
			return printer.Error("invalid cell", err.Error())
		}
		req := protocol.StageItemRequest{ItemID: stageID, Cell: cell, Holder: stageHolder}
		if stageDropoff != "" {
			d, err := parseCell(stageDropoff)
			if err != nil {
				return printer.Error("invalid dropoff", err.Error())
			}
			req.Dropoff = &d
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		it, err := c.StageItem(ctx, req)
		if err != nil {
			return apiError("staging failed", err)
		}
		printer.Success("staged %s at %s", it.ID, cellString(cell))
		return nil
	},
}

var holdCmd = &cobra.Command{
	Use:   "hold CELL...",
	Short: "Claim cells on behalf of a holder",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cells, err := parseCells(args)
		if err != nil {
			return printer.Error("invalid cell", err.Error())
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		h, err := c.CreateHold(ctx, protocol.CreateHoldRequest{Holder: holdHolder, Cells: cells, TTLMS: holdTTL.Milliseconds()})
		if err != nil {
			return apiError("hold failed", err)
		}
		printer.Success("%s holds %s until %s", h.ID, cellsString(h.Cells), h.Expiry.Format(time.RFC3339))
		return nil
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release HOLD_ID",
	Short: "Release a hold",
	Long: `Release a hold as its holder (--holder), or as an administrator when
--holder is omitted. Releasing a route hold as administrator aborts the
agent's operation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if releaseAs == "" {
			err = c.ForceReleaseHold(ctx, args[0])
		} else {
			err = c.ReleaseHold(ctx, args[0], releaseAs)
		}
		if err != nil {
			return apiError("release failed", err)
		}
		printer.Success("released %s", args[0])
		return nil
	},
}

func cellsCommand(use, short string, block bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " CELL...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cells, err := parseCells(args)
			if err != nil {
				return printer.Error("invalid cell", err.Error())
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if block {
				err = c.BlockCells(ctx, cells)
			} else {
				err = c.UnblockCells(ctx, cells)
			}
			if err != nil {
				return apiError(use+" failed", err)
			}
			printer.Success("%sed %d cells", use, len(cells))
			return nil
		},
	}
}

var removeAgentCmd = &cobra.Command{
	Use:   "remove-agent AGENT_ID",
	Short: "Remove an agent, releasing its cell and holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := c.RemoveAgent(ctx, args[0]); err != nil {
			return apiError("remove failed", err)
		}
		printer.Success("removed %s", args[0])
		return nil
	},
}

var pathCmd = &cobra.Command{
	Use:   "path AGENT_ID CELL",
	Short: "Show the route an agent would take to a cell, without reserving it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal, err := parseCell(args[1])
		if err != nil {
			return printer.Error("invalid cell", err.Error())
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		var pf protocol.PathfindingResponse
		if pathFrom != "" {
			start, perr := parseCell(pathFrom)
			if perr != nil {
				return printer.Error("invalid --from cell", perr.Error())
			}
			pf, err = c.PathFrom(ctx, args[0], start, goal)
		} else {
			pf, err = c.Pathfinding(ctx, args[0], goal, false)
		}
		if err != nil {
			return apiError("no path", err)
		}
		printer.Printf("%d steps: %s\n", pf.Steps, cellsString(pf.Path))
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export the operator's state to a file on the operator host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		res, err := c.Snapshot(ctx)
		if err != nil {
			return apiError("snapshot failed", err)
		}
		printer.Success("wrote %s (digest %s)", res.Path, res.Digest)
		return nil
	},
}

func init() {
	stageCmd.Flags().StringVar(&stageID, "id", "", "item id (generated when empty)")
	stageCmd.Flags().StringVar(&stageDropoff, "dropoff", "", "delivery cell x,y")
	stageCmd.Flags().StringVar(&stageHolder, "holder", "", "holder of a claim covering the cell")
	holdCmd.Flags().StringVar(&holdHolder, "holder", "", "holder name")
	holdCmd.Flags().DurationVar(&holdTTL, "ttl", 0, "hold lifetime (operator default when zero)")
	_ = holdCmd.MarkFlagRequired("holder")
	releaseCmd.Flags().StringVar(&releaseAs, "holder", "", "release as this holder")
	pathCmd.Flags().StringVar(&pathFrom, "from", "", "start cell x,y instead of the agent's cell")

	rootCmd.AddCommand(
		stageCmd,
		holdCmd,
		releaseCmd,
		cellsCommand("block", "Block cells", true),
		cellsCommand("unblock", "Unblock cells", false),
		removeAgentCmd,
		pathCmd,
		snapshotCmd,
	)
}
