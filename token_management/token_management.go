package token_management

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/meysamhadeli/codgrade/constants/lipgloss"
	"github.com/meysamhadeli/codgrade/token_management/contracts"
)

// tokenManager accumulates usage across selection calls. Graders may run
// concurrently, so every counter sits behind one mutex.
type tokenManager struct {
	mu              sync.Mutex
	out             io.Writer
	requests        int
	usedToken       int
	usedInputToken  int
	usedOutputToken int
}

// NewTokenManager creates a new token manager writing its summary to stdout.
func NewTokenManager() contracts.ITokenManagement {
	return NewTokenManagerWithWriter(os.Stdout)
}

// NewTokenManagerWithWriter creates a token manager writing its summary to w.
func NewTokenManagerWithWriter(w io.Writer) contracts.ITokenManagement {
	return &tokenManager{out: w}
}

// UsedTokens records one request's token count.
func (tm *tokenManager) UsedTokens(inputToken int, outputToken int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.requests++
	tm.usedInputToken += inputToken
	tm.usedOutputToken += outputToken
	tm.usedToken += inputToken + outputToken
}

func (tm *tokenManager) DisplayTokens(providerName string, model string) {
	total, input, output := tm.GetCurrentTokenUsage()
	if tm.Requests() == 0 {
		return
	}
	info := fmt.Sprintf("Selection requests: %d - Tokens: %d (%d in / %d out) - %s/%s",
		tm.Requests(), total, input, output, providerName, model)
	fmt.Fprintln(tm.out, lipgloss.BoxStyle.Render(info))
}

func (tm *tokenManager) GetCurrentTokenUsage() (total int, input int, output int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.usedToken, tm.usedInputToken, tm.usedOutputToken
}

func (tm *tokenManager) Requests() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.requests
}

func (tm *tokenManager) ClearToken() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.requests = 0
	tm.usedToken = 0
	tm.usedInputToken = 0
	tm.usedOutputToken = 0
}
