package service

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/TaroHarado/copytrade-key/internal/config"
	"github.com/TaroHarado/copytrade-key/internal/model"
	"github.com/TaroHarado/copytrade-key/internal/pkg/apperrors"
	"github.com/TaroHarado/copytrade-key/internal/pkg/logger"
)

// Whitelist is the first gate: closed, configuration-defined sets of
// acceptable destinations. Pure and stateless after construction; anything
// outside a set is rejected regardless of other validity.
type Whitelist struct {
	exchangeContracts map[string]struct{}
	stableTokens      map[string]struct{}
	teamWallets       map[string]struct{}
	chainID           int64
}

func NewWhitelist(cfg config.WhitelistConfig) *Whitelist {
	w := &Whitelist{
		exchangeContracts: addressSet(config.SplitList(cfg.ExchangeContracts)),
		stableTokens:      addressSet(config.SplitList(cfg.StableTokens)),
		teamWallets:       addressSet(config.SplitList(cfg.TeamWallets)),
		chainID:           cfg.ChainID,
	}
	if len(w.teamWallets) == 0 {
		logger.Warn("team wallets not configured, all transfer signing will be rejected")
	}
	return w
}

func addressSet(addrs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		if !common.IsHexAddress(a) {
			logger.Warn("skipping invalid whitelist address", "address", a)
			continue
		}
		set[model.NormalizeAddress(a)] = struct{}{}
	}
	return set
}

// AuthorizeOrder accepts only whitelisted exchange contracts on the single
// supported chain.
func (w *Whitelist) AuthorizeOrder(verifyingContract string, chainID int64) error {
	if chainID != w.chainID {
		return apperrors.Newf(apperrors.ReasonForbiddenDestination,
			"chain %d not supported, only %d", chainID, w.chainID)
	}
	if _, ok := w.exchangeContracts[model.NormalizeAddress(verifyingContract)]; !ok {
		return apperrors.Newf(apperrors.ReasonForbiddenDestination,
			"contract %s not whitelisted", verifyingContract)
	}
	return nil
}

// AuthorizeAllowance accepts only whitelisted stable tokens approved for
// whitelisted exchange contracts.
func (w *Whitelist) AuthorizeAllowance(tokenAddress, spenderAddress string) error {
	if _, ok := w.stableTokens[model.NormalizeAddress(tokenAddress)]; !ok {
		return apperrors.Newf(apperrors.ReasonForbiddenDestination,
			"token %s not whitelisted", tokenAddress)
	}
	if _, ok := w.exchangeContracts[model.NormalizeAddress(spenderAddress)]; !ok {
		return apperrors.Newf(apperrors.ReasonForbiddenDestination,
			"spender %s not whitelisted", spenderAddress)
	}
	return nil
}

// AuthorizeTransfer accepts only whitelisted stable tokens moving to team
// wallets. An empty team-wallet set rejects everything: missing
// configuration must fail closed.
func (w *Whitelist) AuthorizeTransfer(tokenAddress, recipientAddress string) error {
	if _, ok := w.stableTokens[model.NormalizeAddress(tokenAddress)]; !ok {
		return apperrors.Newf(apperrors.ReasonForbiddenDestination,
			"token %s not whitelisted", tokenAddress)
	}
	if len(w.teamWallets) == 0 {
		return apperrors.New(apperrors.ReasonForbiddenDestination,
			"team wallets not configured")
	}
	if _, ok := w.teamWallets[model.NormalizeAddress(recipientAddress)]; !ok {
		return apperrors.Newf(apperrors.ReasonForbiddenDestination,
			"recipient %s is not a team wallet", recipientAddress)
	}
	return nil
}
