package main

import (
	"context"
	"fmt"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/madrasa/backend/core/enrollment"
)

func (cli *commandLine) listFailures() error {
	failures, err := cli.fulfillment.ListPendingFailures(context.Background())
	if err != nil {
		return err
	}
	if len(failures) == 0 {
		fmt.Fprintln(cli.out, "no pending enrollment failures")
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PAYMENT\tFAILED AT\tERROR")
	for _, f := range failures {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.PaymentID, f.CreatedAt.Format(time.RFC3339), f.Error)
	}
	return w.Flush()
}

func (cli *commandLine) retry(paymentID string) error {
	res := cli.fulfillment.RetryFailedEnrollment(context.Background(), paymentID)
	cli.printResult(paymentID, res)
	if !res.Success {
		return errors.New(res.Message)
	}
	return nil
}

// retryAll retries every payment with a pending failure, at most `workers` at a time.
func (cli *commandLine) retryAll(workers int) error {
	failures, err := cli.fulfillment.ListPendingFailures(context.Background())
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(failures))
	paymentIDs := make([]string, 0, len(failures))
	for _, f := range failures {
		if !seen[f.PaymentID] {
			seen[f.PaymentID] = true
			paymentIDs = append(paymentIDs, f.PaymentID)
		}
	}

	var (
		mu     sync.Mutex
		failed int
	)
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for _, id := range paymentIDs {
		id := id
		g.Go(func() error {
			res := cli.fulfillment.RetryFailedEnrollment(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			cli.printResult(id, res)
			if !res.Success {
				failed++
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "retried %d payment(s), %d failed\n", len(paymentIDs), failed)
	if failed > 0 {
		return errors.Errorf("%d of %d retries failed", failed, len(paymentIDs))
	}
	return nil
}

func (cli *commandLine) printResult(paymentID string, res enrollment.Result) {
	if res.Success {
		fmt.Fprintf(cli.out, "%s: enrolled (%s)\n", paymentID, res.EnrollmentID)
		return
	}
	fmt.Fprintf(cli.out, "%s: %s: %s\n", paymentID, res.Reason, res.Message)
}
