package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// ExportLedgerWorkflow fetches an address's history, builds its ledger and
// writes it out. It runs once per StartExport call or per schedule tick.
//
// Steps:
//  1. FetchTransactions pulls both history streams from the explorer.
//  2. BuildLedger annotates, builds splits and saves resolved prices.
//  3. WriteLedger writes the CSV and publishes splits when asked to.
func ExportLedgerWorkflow(ctx workflow.Context, input ExportLedgerInput) (*ExportLedgerResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ExportLedgerWorkflow started", "address", input.Address)

	result := &ExportLedgerResult{
		Address:    input.Address,
		OutputPath: input.OutputPath,
		ExportTime: workflow.Now(ctx),
	}
	fail := func(step string, err error) (*ExportLedgerResult, error) {
		msg := fmt.Sprintf("failed to %s: %v", step, err)
		result.Error = &msg
		logger.Error("ExportLedgerWorkflow failed", "address", input.Address, "step", step, "error", err)
		return result, fmt.Errorf("failed to %s: %w", step, err)
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var fetched *FetchTransactionsResult
	err := workflow.ExecuteActivity(ctx, a.FetchTransactions, FetchTransactionsInput{
		Address: input.Address,
	}).Get(ctx, &fetched)
	if err != nil {
		return fail("fetch transactions", err)
	}
	result.TransactionCount = len(fetched.Transactions)

	var built *BuildLedgerResult
	err = workflow.ExecuteActivity(ctx, a.BuildLedger, BuildLedgerInput{
		Address:        input.Address,
		Transactions:   fetched.Transactions,
		TagsPath:       input.TagsPath,
		CategoriesPath: input.CategoriesPath,
		Valuation:      input.Valuation,
		Tokens:         input.Tokens,
	}).Get(ctx, &built)
	if err != nil {
		return fail("build ledger", err)
	}
	result.SplitCount = len(built.Splits)

	var written *WriteLedgerResult
	err = workflow.ExecuteActivity(ctx, a.WriteLedger, WriteLedgerInput{
		Address:    input.Address,
		OutputPath: input.OutputPath,
		Splits:     built.Splits,
		WithValue:  input.Valuation,
		Publish:    input.Publish,
	}).Get(ctx, &written)
	if err != nil {
		return fail("write ledger", err)
	}
	result.Published = written.Published

	logger.Info("ExportLedgerWorkflow completed",
		"address", input.Address,
		"transaction_count", result.TransactionCount,
		"split_count", result.SplitCount,
		"published", result.Published,
	)
	return result, nil
}
