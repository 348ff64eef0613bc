package temporal

import (
	"errors"
	"testing"

	"github.com/brojonat/arbledger/service/explorer"
	"github.com/brojonat/arbledger/service/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

func newWorkflowEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *Activities) {
	t.Helper()
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.FetchTransactions)
	env.RegisterActivity(activities.BuildLedger)
	env.RegisterActivity(activities.WriteLedger)
	return env, activities
}

func TestExportLedgerWorkflow(t *testing.T) {
	input := ExportLedgerInput{
		Address:    tracked.Hex(),
		OutputPath: "/tmp/ledger.csv",
		Valuation:  true,
		Publish:    true,
	}
	splits := []ledger.Split{
		{Date: day, Description: "from Exchange", Account: "Exchange", Commodity: "ETH", Amount: 1, TxHash: common.HexToHash("0x01")},
		{Date: day, Description: "from Exchange", Account: "Exchange", Commodity: "USDC", Amount: 10, TxHash: common.HexToHash("0x01")},
	}

	tests := []struct {
		name           string
		setup          func(env *testsuite.TestWorkflowEnvironment, a *Activities)
		expectedError  string
		validateResult func(*testing.T, *ExportLedgerResult)
	}{
		{
			name: "successful export",
			setup: func(env *testsuite.TestWorkflowEnvironment, a *Activities) {
				env.OnActivity(a.FetchTransactions, mock.Anything, FetchTransactionsInput{Address: tracked.Hex()}).
					Return(&FetchTransactionsResult{Transactions: []*explorer.Transaction{depositTx()}}, nil)
				env.OnActivity(a.BuildLedger, mock.Anything, mock.MatchedBy(func(in BuildLedgerInput) bool {
					return in.Valuation && len(in.Transactions) == 1
				})).Return(&BuildLedgerResult{Splits: splits}, nil)
				env.OnActivity(a.WriteLedger, mock.Anything, mock.MatchedBy(func(in WriteLedgerInput) bool {
					return in.WithValue && in.Publish && in.OutputPath == "/tmp/ledger.csv" && len(in.Splits) == 2
				})).Return(&WriteLedgerResult{Rows: 2, Published: 2}, nil)
			},
			validateResult: func(t *testing.T, r *ExportLedgerResult) {
				assert.Equal(t, tracked.Hex(), r.Address)
				assert.Equal(t, 1, r.TransactionCount)
				assert.Equal(t, 2, r.SplitCount)
				assert.Equal(t, 2, r.Published)
				assert.Nil(t, r.Error)
				assert.False(t, r.ExportTime.IsZero())
			},
		},
		{
			name: "empty history still writes a header-only ledger",
			setup: func(env *testsuite.TestWorkflowEnvironment, a *Activities) {
				env.OnActivity(a.FetchTransactions, mock.Anything, mock.Anything).
					Return(&FetchTransactionsResult{}, nil)
				env.OnActivity(a.BuildLedger, mock.Anything, mock.Anything).
					Return(&BuildLedgerResult{}, nil)
				env.OnActivity(a.WriteLedger, mock.Anything, mock.Anything).
					Return(&WriteLedgerResult{}, nil)
			},
			validateResult: func(t *testing.T, r *ExportLedgerResult) {
				assert.Zero(t, r.TransactionCount)
				assert.Zero(t, r.SplitCount)
			},
		},
		{
			name: "fetch fails",
			setup: func(env *testsuite.TestWorkflowEnvironment, a *Activities) {
				env.OnActivity(a.FetchTransactions, mock.Anything, mock.Anything).
					Return(nil, errors.New("explorer unavailable"))
			},
			expectedError: "explorer unavailable",
		},
		{
			name: "build fails",
			setup: func(env *testsuite.TestWorkflowEnvironment, a *Activities) {
				env.OnActivity(a.FetchTransactions, mock.Anything, mock.Anything).
					Return(&FetchTransactionsResult{Transactions: []*explorer.Transaction{depositTx()}}, nil)
				env.OnActivity(a.BuildLedger, mock.Anything, mock.Anything).
					Return(nil, errors.New("no price for eth"))
			},
			expectedError: "no price for eth",
		},
		{
			name: "write fails",
			setup: func(env *testsuite.TestWorkflowEnvironment, a *Activities) {
				env.OnActivity(a.FetchTransactions, mock.Anything, mock.Anything).
					Return(&FetchTransactionsResult{Transactions: []*explorer.Transaction{depositTx()}}, nil)
				env.OnActivity(a.BuildLedger, mock.Anything, mock.Anything).
					Return(&BuildLedgerResult{Splits: splits}, nil)
				env.OnActivity(a.WriteLedger, mock.Anything, mock.Anything).
					Return(nil, errors.New("read-only file system"))
			},
			expectedError: "read-only file system",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, activities := newWorkflowEnv(t)
			tt.setup(env, activities)

			env.ExecuteWorkflow(ExportLedgerWorkflow, input)
			require.True(t, env.IsWorkflowCompleted())

			if tt.expectedError != "" {
				err := env.GetWorkflowError()
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				return
			}

			require.NoError(t, env.GetWorkflowError())
			var result ExportLedgerResult
			require.NoError(t, env.GetWorkflowResult(&result))
			tt.validateResult(t, &result)
			env.AssertExpectations(t)
		})
	}
}

func TestExportLedgerWorkflow_ActivityRetries(t *testing.T) {
	env, activities := newWorkflowEnv(t)

	calls := 0
	env.OnActivity(activities.FetchTransactions, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		calls++
		if calls < 3 {
			panic("transient error") // Temporal retries on panics
		}
	}).Return(&FetchTransactionsResult{}, nil)
	env.OnActivity(activities.BuildLedger, mock.Anything, mock.Anything).Return(&BuildLedgerResult{}, nil)
	env.OnActivity(activities.WriteLedger, mock.Anything, mock.Anything).Return(&WriteLedgerResult{}, nil)

	env.ExecuteWorkflow(ExportLedgerWorkflow, ExportLedgerInput{Address: tracked.Hex(), OutputPath: "/tmp/ledger.csv"})

	assert.NoError(t, env.GetWorkflowError())
	assert.Equal(t, 3, calls)
}

func TestExportLedgerWorkflow_RetriesExhausted(t *testing.T) {
	env, activities := newWorkflowEnv(t)

	calls := 0
	env.OnActivity(activities.FetchTransactions, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		calls++
	}).Return(nil, errors.New("rate limited"))

	env.ExecuteWorkflow(ExportLedgerWorkflow, ExportLedgerInput{Address: tracked.Hex()})

	assert.Error(t, env.GetWorkflowError())
	assert.Equal(t, 3, calls)
}
