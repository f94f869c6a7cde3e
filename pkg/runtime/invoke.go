package runtime

import (
	"bytes"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/pda"
	"github.com/fortiblox/X1-Duel/pkg/svm"
)

// execution is the state of one transaction while it runs.
type execution struct {
	exec     *Executor
	txn      *accounts.Txn
	meter    *svm.ComputeMeter
	signers  map[types.Pubkey]bool
	writable map[types.Pubkey]bool
	now      int64
	logs     []string
	events   []svm.Event
}

func (x *execution) execute(tx *Transaction) *TransactionError {
	for i, ix := range tx.Message.Instructions {
		f, err := x.topFrame(ix)
		if err != nil {
			return newTransactionError(i, err)
		}
		if err := x.run(f, ix.Data); err != nil {
			return newTransactionError(i, err)
		}
		for _, info := range f.unique {
			if !info.IsWritable {
				continue
			}
			if err := x.txn.SetAccount(info.Key, info.ToAccount()); err != nil {
				return newTransactionError(i, err)
			}
		}
	}
	return nil
}

// frame is one program invocation: its account views and their state when
// the frame last passed verification.
type frame struct {
	programID types.Pubkey
	infos     []*svm.AccountInfo
	unique    []*svm.AccountInfo
	pre       []accountState
	depth     int
}

type accountState struct {
	lamports   uint64
	data       []byte
	owner      types.Pubkey
	executable bool
}

func captureState(info *svm.AccountInfo) accountState {
	return accountState{
		lamports:   info.Lamports,
		data:       append([]byte(nil), info.Data...),
		owner:      info.Owner,
		executable: info.Executable,
	}
}

func (f *frame) snapshot() {
	f.pre = make([]accountState, len(f.unique))
	for i, info := range f.unique {
		f.pre[i] = captureState(info)
	}
}

func (f *frame) lookup(key types.Pubkey) *svm.AccountInfo {
	for _, info := range f.unique {
		if info.Key == key {
			return info
		}
	}
	return nil
}

// topFrame loads a transaction-level instruction's accounts from the overlay.
// A key listed twice shares one view with the union of its privileges.
func (x *execution) topFrame(ix svm.Instruction) (*frame, error) {
	f := &frame{programID: ix.ProgramID, depth: 1}
	for _, meta := range ix.Accounts {
		signer := meta.IsSigner && x.signers[meta.Pubkey]
		writable := meta.IsWritable && x.writable[meta.Pubkey]
		if info := f.lookup(meta.Pubkey); info != nil {
			info.IsSigner = info.IsSigner || signer
			info.IsWritable = info.IsWritable || writable
			f.infos = append(f.infos, info)
			continue
		}
		acc, _, err := x.txn.LoadAccount(meta.Pubkey)
		if err != nil {
			return nil, err
		}
		info := svm.NewAccountInfo(meta.Pubkey, acc, signer, writable)
		f.infos = append(f.infos, info)
		f.unique = append(f.unique, info)
	}
	f.snapshot()
	return f, nil
}

// run invokes the frame's program and verifies the result.
func (x *execution) run(f *frame, data []byte) error {
	program, ok := x.exec.programs[f.programID]
	if !ok {
		x.log("Program %s invoke [%d]", f.programID, f.depth)
		x.log("Program %s failed: %v", f.programID, svm.ErrUnknownProgram)
		return fmt.Errorf("%w: %s", svm.ErrUnknownProgram, f.programID)
	}
	x.log("Program %s invoke [%d]", f.programID, f.depth)
	before := x.meter.Consumed()

	ctx := &invokeContext{x: x, f: f}
	if err := program.Process(ctx, data); err != nil {
		x.log("Program %s failed: %v", f.programID, err)
		return err
	}
	if err := x.verify(f); err != nil {
		x.log("Program %s failed: %v", f.programID, err)
		return err
	}
	x.log("Program %s consumed %d of %d compute units", f.programID, x.meter.Consumed()-before, x.meter.Limit())
	x.log("Program %s success", f.programID)
	return nil
}

// verify enforces the account rules on everything the frame changed since
// its last snapshot, then takes a fresh snapshot.
func (x *execution) verify(f *frame) error {
	preSum, postSum := new(uint256.Int), new(uint256.Int)
	rent := x.exec.config.Rent
	for i, post := range f.unique {
		pre := f.pre[i]
		preSum.Add(preSum, uint256.NewInt(pre.lamports))
		postSum.Add(postSum, uint256.NewInt(post.Lamports))

		dataChanged := !bytes.Equal(pre.data, post.Data)
		ownerChanged := pre.owner != post.Owner
		ownedByProgram := pre.owner == f.programID

		if !post.IsWritable {
			if pre.lamports != post.Lamports {
				return fmt.Errorf("%w: %s", svm.ErrReadonlyLamportChange, post.Key)
			}
			if dataChanged {
				return fmt.Errorf("%w: %s", svm.ErrReadonlyDataModified, post.Key)
			}
			if ownerChanged {
				return fmt.Errorf("%w: %s", svm.ErrModifiedProgramID, post.Key)
			}
		}
		if pre.executable != post.Executable {
			return fmt.Errorf("%w: %s", svm.ErrExecutableModified, post.Key)
		}
		if ownerChanged && (!ownedByProgram || !isZeroed(post.Data)) {
			return fmt.Errorf("%w: %s", svm.ErrModifiedProgramID, post.Key)
		}
		if post.Lamports < pre.lamports && !ownedByProgram {
			return fmt.Errorf("%w: %s", svm.ErrExternalAccountLamportSpend, post.Key)
		}
		if dataChanged && !ownedByProgram {
			return fmt.Errorf("%w: %s", svm.ErrExternalAccountDataModified, post.Key)
		}
		if len(post.Data) > accounts.MaxAccountDataSize {
			return fmt.Errorf("%w: %s", svm.ErrExternalAccountDataModified, post.Key)
		}
		if post.IsWritable && (post.Lamports != pre.lamports || dataChanged) && post.Lamports > 0 {
			wasExempt := pre.lamports == 0 || rent.IsExempt(pre.lamports, uint64(len(pre.data)))
			if wasExempt && !rent.IsExempt(post.Lamports, uint64(len(post.Data))) {
				return fmt.Errorf("%w: %s", svm.ErrInsufficientFundsForRent, post.Key)
			}
		}
	}
	if !preSum.Eq(postSum) {
		return svm.ErrUnbalancedInstruction
	}
	f.snapshot()
	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

func (x *execution) log(format string, args ...interface{}) {
	x.logs = append(x.logs, fmt.Sprintf(format, args...))
}

// invokeContext implements svm.InvokeContext for one frame.
type invokeContext struct {
	x *execution
	f *frame
}

func (c *invokeContext) ProgramID() types.Pubkey { return c.f.programID }

func (c *invokeContext) Accounts() []*svm.AccountInfo { return c.f.infos }

func (c *invokeContext) Now() int64 { return c.x.now }

func (c *invokeContext) Rent() accounts.Rent { return c.x.exec.config.Rent }

func (c *invokeContext) ConsumeCU(units uint64) error { return c.x.meter.Consume(units) }

func (c *invokeContext) Log(format string, args ...interface{}) {
	c.x.log("Program log: "+format, args...)
}

func (c *invokeContext) Emit(name string, payload interface{}) {
	c.x.events = append(c.x.events, svm.Event{Program: c.f.programID, Name: name, Payload: payload})
}

// Invoke runs ix as a nested call. The caller's changes so far are verified
// first; the callee sees them and its own changes flow back into the caller's
// views once it succeeds.
func (c *invokeContext) Invoke(ix svm.Instruction, signerSeeds [][][]byte) error {
	caller := c.f
	if caller.depth >= svm.MaxCPIDepth {
		return svm.ErrCallDepth
	}
	if err := c.ConsumeCU(svm.CUInvokeBase); err != nil {
		return err
	}

	pdaSigners := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		if err := c.ConsumeCU(svm.CUCreateProgramAddress); err != nil {
			return err
		}
		addr, err := pda.CreateProgramAddress(seeds, caller.programID)
		if err != nil {
			return err
		}
		pdaSigners[addr] = true
	}

	callee := &frame{programID: ix.ProgramID, depth: caller.depth + 1}
	for _, meta := range ix.Accounts {
		src := caller.lookup(meta.Pubkey)
		if src == nil {
			return fmt.Errorf("%w: %s", svm.ErrMissingAccount, meta.Pubkey)
		}
		if meta.IsWritable && !src.IsWritable {
			return fmt.Errorf("%w: %s writable", svm.ErrPrivilegeEscalation, meta.Pubkey)
		}
		if meta.IsSigner && !src.IsSigner && !pdaSigners[meta.Pubkey] {
			return fmt.Errorf("%w: %s signer", svm.ErrPrivilegeEscalation, meta.Pubkey)
		}
		if info := callee.lookup(meta.Pubkey); info != nil {
			info.IsSigner = info.IsSigner || meta.IsSigner
			info.IsWritable = info.IsWritable || meta.IsWritable
			callee.infos = append(callee.infos, info)
			continue
		}
		info := &svm.AccountInfo{
			Key:        src.Key,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			Lamports:   src.Lamports,
			Data:       append([]byte(nil), src.Data...),
			Owner:      src.Owner,
			Executable: src.Executable,
		}
		callee.infos = append(callee.infos, info)
		callee.unique = append(callee.unique, info)
	}

	if err := c.x.verify(caller); err != nil {
		return err
	}
	callee.snapshot()
	if err := c.x.run(callee, ix.Data); err != nil {
		return err
	}

	for _, info := range callee.unique {
		dst := caller.lookup(info.Key)
		dst.Lamports = info.Lamports
		dst.Data = info.Data
		dst.Owner = info.Owner
		dst.Executable = info.Executable
	}
	caller.snapshot()
	return nil
}

var _ svm.InvokeContext = (*invokeContext)(nil)
