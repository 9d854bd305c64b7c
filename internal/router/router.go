// Package router is the single user entry point in front of the vaults. It
// holds no fund state: value passes through it within one call, and only the
// audit log accumulates.
package router

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/terminal-bench/fundvault/internal/audit"
	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/internal/policy"
	"github.com/terminal-bench/fundvault/internal/roles"
	"github.com/terminal-bench/fundvault/internal/token"
	"github.com/terminal-bench/fundvault/internal/vault"
	"github.com/terminal-bench/fundvault/pkg/fixedpoint"
)

// Router forwards user requests to authorized vaults and keeps the per-user
// audit history.
type Router struct {
	addr   fund.Address
	roles  *roles.Registry
	asset  *token.Service
	shares *token.Service
	log    *audit.Log

	mu         sync.RWMutex
	order      *list.List
	vaults     map[fund.Address]*list.Element
	compliance policy.CompliancePolicy
}

type authorizedVault struct {
	v *vault.Vault
}

// New creates a router operating on the given tokens.
func New(addr fund.Address, reg *roles.Registry, asset, shares *token.Service) (*Router, error) {
	if addr.IsZero() {
		return nil, fund.ErrZeroAddress
	}
	if reg == nil || asset == nil || shares == nil {
		return nil, fund.ErrZeroAddress
	}
	return &Router{
		addr:       addr,
		roles:      reg,
		asset:      asset,
		shares:     shares,
		log:        audit.NewLog(),
		order:      list.New(),
		vaults:     make(map[fund.Address]*list.Element),
		compliance: policy.AllowAll{},
	}, nil
}

// Address returns the router's ledger address.
func (r *Router) Address() fund.Address { return r.addr }

// AppendProcessed lets vaults write settlement outcomes into the shared
// audit log.
func (r *Router) AppendProcessed(rec audit.ProcessedRecord) {
	r.log.AppendProcessed(rec)
}

// UpdateCompliance swaps the router-level policy, independent of any
// vault-level one.
func (r *Router) UpdateCompliance(caller fund.Address, p policy.CompliancePolicy) error {
	if err := r.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if p == nil {
		return fund.ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compliance = p
	return nil
}

// AuthorizeVault admits v and grants it unlimited allowances over the
// router's asset and share balances, so it can pull forwarded value.
func (r *Router) AuthorizeVault(caller fund.Address, v *vault.Vault) error {
	if err := r.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if v == nil {
		return fund.ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vaults[v.Address()]; ok {
		return fund.ErrAlreadyAuthorized
	}
	if err := r.asset.Approve(r.addr, v.Address(), fixedpoint.MaxUint); err != nil {
		return err
	}
	if err := r.shares.Approve(r.addr, v.Address(), fixedpoint.MaxUint); err != nil {
		return err
	}
	r.vaults[v.Address()] = r.order.PushBack(authorizedVault{v: v})
	return nil
}

// DeauthorizeVault removes the vault and revokes its allowances.
func (r *Router) DeauthorizeVault(caller, vaultAddr fund.Address) error {
	if err := r.roles.RequireAdmin(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	elem, ok := r.vaults[vaultAddr]
	if !ok {
		return fund.ErrNotAuthorized
	}
	if err := r.asset.Approve(r.addr, vaultAddr, decimal.Zero); err != nil {
		return err
	}
	if err := r.shares.Approve(r.addr, vaultAddr, decimal.Zero); err != nil {
		return err
	}
	r.order.Remove(elem)
	delete(r.vaults, vaultAddr)
	return nil
}

// IsAuthorized reports membership.
func (r *Router) IsAuthorized(vaultAddr fund.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.vaults[vaultAddr]
	return ok
}

// VaultCount returns the number of authorized vaults.
func (r *Router) VaultCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vaults)
}

// VaultsInRange pages through authorized vaults in authorization order.
func (r *Router) VaultsInRange(start, count int) ([]fund.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if start < 0 || count < 0 {
		return nil, fund.ErrOutOfRange
	}
	if count == 0 {
		return []fund.Address{}, nil
	}
	if start >= len(r.vaults) || start+count > len(r.vaults) {
		return nil, fund.ErrOutOfRange
	}
	out := make([]fund.Address, 0, count)
	elem := r.order.Front()
	for i := 0; i < start; i++ {
		elem = elem.Next()
	}
	for i := 0; i < count; i++ {
		out = append(out, elem.Value.(authorizedVault).v.Address())
		elem = elem.Next()
	}
	return out, nil
}

func (r *Router) lookup(vaultAddr fund.Address) (*vault.Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	elem, ok := r.vaults[vaultAddr]
	if !ok {
		return nil, fund.ErrVaultNotAuthorized
	}
	return elem.Value.(authorizedVault).v, nil
}

func (r *Router) allowed(addrs ...fund.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range addrs {
		if !r.compliance.IsAllowed(a) {
			return false
		}
	}
	return true
}

// DepositRequest pulls the asset from sender and forwards it to the vault's
// deposit pipeline for receiver. Requires sender's asset allowance to the
// router.
func (r *Router) DepositRequest(ctx context.Context, sender, vaultAddr fund.Address, amount decimal.Decimal, receiver fund.Address) error {
	if sender.IsZero() || receiver.IsZero() {
		return fund.ErrZeroAddress
	}
	if !r.allowed(sender, receiver) {
		return fund.ErrForbidden
	}
	v, err := r.lookup(vaultAddr)
	if err != nil {
		return err
	}
	if err := r.asset.TransferFrom(ctx, r.addr, sender, r.addr, amount); err != nil {
		return err
	}
	if err := v.DepositRequest(ctx, r.addr, amount, receiver); err != nil {
		// Value must not rest here; hand it straight back.
		if uerr := r.asset.Transfer(ctx, r.addr, sender, amount); uerr != nil {
			return fmt.Errorf("deposit rejected and refund to sender failed: %v: %w", uerr, err)
		}
		return err
	}
	r.log.AppendRequest(audit.RequestRecord{
		Vault:    vaultAddr,
		Type:     fund.RequestDeposit,
		Sender:   sender,
		Receiver: receiver,
		Amount:   amount,
	})
	return nil
}

// WithdrawRequest pulls shares from sender and forwards them to the vault's
// withdrawal pipeline for receiver. Requires sender's share allowance to the
// router.
func (r *Router) WithdrawRequest(ctx context.Context, sender, vaultAddr fund.Address, amount decimal.Decimal, receiver fund.Address) error {
	if sender.IsZero() || receiver.IsZero() {
		return fund.ErrZeroAddress
	}
	if !r.allowed(sender, receiver) {
		return fund.ErrForbidden
	}
	v, err := r.lookup(vaultAddr)
	if err != nil {
		return err
	}
	if err := r.shares.TransferFrom(ctx, r.addr, sender, r.addr, amount); err != nil {
		return err
	}
	if err := v.WithdrawRequest(ctx, r.addr, amount, receiver); err != nil {
		if uerr := r.shares.Transfer(ctx, r.addr, sender, amount); uerr != nil {
			return fmt.Errorf("withdrawal rejected and refund to sender failed: %v: %w", uerr, err)
		}
		return err
	}
	r.log.AppendRequest(audit.RequestRecord{
		Vault:    vaultAddr,
		Type:     fund.RequestWithdraw,
		Sender:   sender,
		Receiver: receiver,
		Amount:   amount,
	})
	return nil
}

// NumberOfRecords returns how many request and processed records user has.
func (r *Router) NumberOfRecords(user fund.Address) (requests, processed int) {
	return r.log.NumberOf(user)
}

// GetRecords pages through both record kinds for user in one call.
func (r *Router) GetRecords(user fund.Address, reqStart, reqCount, procStart, procCount int) ([]audit.RequestRecord, []audit.ProcessedRecord, error) {
	reqs, err := r.log.Requests(user, reqStart, reqCount)
	if err != nil {
		return nil, nil, err
	}
	procs, err := r.log.Processed(user, procStart, procCount)
	if err != nil {
		return nil, nil, err
	}
	return reqs, procs, nil
}
