package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/tablesplit-backend/internal/application/service"
)

func previewCmd(a *app) *cobra.Command {
	var (
		orderID string
		moves   []string
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show how an order would split, without committing",
		Example: `  tablesplit preview --order 7f3c --move P1:0:2 --move P2:1:1
  (moving into the next index adds a bucket)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := ParseMoveSpecs(moves)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := openStorage(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			svc := service.NewSplitService(store, nil, nil, a.logger, a.cfg.Sessions)
			view, err := svc.StartSession(ctx, orderID)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Cancel(view.ID) }()

			buckets := len(view.Buckets)
			for _, spec := range specs {
				if spec.BucketIndex > buckets {
					return fmt.Errorf("move %s:%d:%d: bucket index may be at most %d (the next new bucket)",
						spec.ProductID, spec.BucketIndex, spec.Quantity, buckets)
				}
				if spec.BucketIndex == buckets {
					if _, err := svc.AddBucket(view.ID, ""); err != nil {
						return err
					}
					buckets++
				}
				if _, err := svc.MoveQuantity(view.ID, spec.ProductID, spec.BucketIndex, spec.Quantity); err != nil {
					return fmt.Errorf("move %s:%d:%d: %w", spec.ProductID, spec.BucketIndex, spec.Quantity, err)
				}
			}

			result, err := svc.Preview(view.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			PrintHeader(out, orderID, false)
			PrintSplit(out, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&orderID, "order", "", "order ID to split")
	cmd.Flags().StringArrayVar(&moves, "move", nil, "PRODUCT:BUCKET:QTY, repeatable")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}
