// Package store provides an in-memory pharmacy.Store.
//
// Memory keeps committed rows in maps guarded by an RWMutex and gives each
// atomic unit its own staging area. Row locks are one-slot channels keyed by
// table and id, acquired in ascending id order and held until the unit
// commits or rolls back, so two sales touching the same medicine serialize
// on that medicine only. Lock waits end with the context or after LockWait.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/pharmacy-engine/pharmacy"
)

var errLockWait = errors.New("lock wait timeout")

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	// LockWait bounds a lock wait when the context has no deadline.
	LockWait time.Duration

	mu           sync.RWMutex
	medicines    map[pharmacy.MedicineID]pharmacy.Medicine
	patients     map[pharmacy.PatientID]pharmacy.Patient
	transactions map[pharmacy.TransactionID]pharmacy.Transaction
	usage        []pharmacy.MedicineUsage
	sequences    map[string]int64
	lastID       map[string]int64

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

func NewMemory() *Memory {
	return &Memory{
		LockWait:     5 * time.Second,
		medicines:    make(map[pharmacy.MedicineID]pharmacy.Medicine),
		patients:     make(map[pharmacy.PatientID]pharmacy.Patient),
		transactions: make(map[pharmacy.TransactionID]pharmacy.Transaction),
		sequences:    make(map[string]int64),
		lastID:       make(map[string]int64),
		locks:        make(map[string]chan struct{}),
	}
}

// =============================================================================
// READER
// =============================================================================

func (m *Memory) GetMedicine(_ context.Context, id pharmacy.MedicineID) (*pharmacy.Medicine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	med, ok := m.medicines[id]
	if !ok {
		return nil, nil
	}
	return &med, nil
}

func (m *Memory) ListMedicines(_ context.Context) ([]pharmacy.Medicine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pharmacy.Medicine, 0, len(m.medicines))
	for _, med := range m.medicines {
		out = append(out, med)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetPatient(_ context.Context, id pharmacy.PatientID) (*pharmacy.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.patients[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) ListPatients(_ context.Context) ([]pharmacy.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pharmacy.Patient, 0, len(m.patients))
	for _, p := range m.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetTransaction(_ context.Context, id pharmacy.TransactionID) (*pharmacy.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transactions[id]
	if !ok {
		return nil, nil
	}
	items := make([]pharmacy.TransactionItem, len(t.Items))
	for i, item := range t.Items {
		if med, ok := m.medicines[item.MedicineID]; ok {
			item.MedicineName = med.Name
		}
		items[i] = item
	}
	t.Items = items
	return &t, nil
}

func (m *Memory) ListTransactions(_ context.Context) ([]pharmacy.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pharmacy.Transaction, 0, len(m.transactions))
	for _, t := range m.transactions {
		t.Items = nil
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListUsage(_ context.Context) ([]pharmacy.MedicineUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pharmacy.MedicineUsage, len(m.usage))
	for i, u := range m.usage {
		if med, ok := m.medicines[u.MedicineID]; ok {
			u.MedicineName = med.Name
		}
		out[i] = u
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UsageDate.Equal(out[j].UsageDate) {
			return out[i].UsageDate.After(out[j].UsageDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// =============================================================================
// ATOMIC UNITS
// =============================================================================

// WithTx runs fn against a private staging area. Staged writes become
// visible in one step on commit; on error they are dropped.
func (m *Memory) WithTx(ctx context.Context, fn func(pharmacy.Tx) error) error {
	tx := &memTx{
		m:         m,
		held:      make(map[string]bool),
		medicines: make(map[pharmacy.MedicineID]pharmacy.Medicine),
		deleted:   make(map[pharmacy.MedicineID]bool),
		statuses:  make(map[pharmacy.TransactionID]statusChange),
		edited:    make(map[pharmacy.PatientID]pharmacy.Patient),
		sequences: make(map[string]int64),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &pharmacy.ConflictError{Op: "commit", Err: err}
	}
	return tx.commit()
}

func (m *Memory) acquire(ctx context.Context, key string) error {
	m.locksMu.Lock()
	slot, ok := m.locks[key]
	if !ok {
		slot = make(chan struct{}, 1)
		m.locks[key] = slot
	}
	m.locksMu.Unlock()

	var expired <-chan time.Time
	if _, ok := ctx.Deadline(); !ok && m.LockWait > 0 {
		timer := time.NewTimer(m.LockWait)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return &pharmacy.ConflictError{Op: "lock " + key, Err: ctx.Err()}
	case <-expired:
		return &pharmacy.ConflictError{Op: "lock " + key, Err: errLockWait}
	}
}

func (m *Memory) unlock(key string) {
	m.locksMu.Lock()
	slot := m.locks[key]
	m.locksMu.Unlock()
	<-slot
}

// nextIDLocked allocates a row id. Caller holds m.mu.
func (m *Memory) nextIDLocked(table string) int64 {
	m.lastID[table]++
	return m.lastID[table]
}

func medicineKey(id pharmacy.MedicineID) string       { return fmt.Sprintf("medicines/%d", id) }
func transactionKey(id pharmacy.TransactionID) string { return fmt.Sprintf("transactions/%d", id) }
func patientKey(id pharmacy.PatientID) string         { return fmt.Sprintf("patients/%d", id) }
func sequenceKey(name string) string                  { return "code_sequences/" + name }

// =============================================================================
// MEMORY TX
// =============================================================================

type statusChange struct {
	status pharmacy.PaymentStatus
	at     time.Time
}

type memTx struct {
	m    *Memory
	held map[string]bool
	keys []string

	medicines    map[pharmacy.MedicineID]pharmacy.Medicine
	deleted      map[pharmacy.MedicineID]bool
	patients     []pharmacy.Patient
	edited       map[pharmacy.PatientID]pharmacy.Patient
	transactions []pharmacy.Transaction
	usage        []pharmacy.MedicineUsage
	statuses     map[pharmacy.TransactionID]statusChange
	sequences    map[string]int64
}

func (tx *memTx) lock(ctx context.Context, key string) error {
	if tx.held[key] {
		return nil
	}
	if err := tx.m.acquire(ctx, key); err != nil {
		return err
	}
	tx.held[key] = true
	tx.keys = append(tx.keys, key)
	return nil
}

func (tx *memTx) release() {
	for i := len(tx.keys) - 1; i >= 0; i-- {
		tx.m.unlock(tx.keys[i])
	}
	tx.keys = nil
	tx.held = map[string]bool{}
}

// medicine returns the row as this unit sees it.
func (tx *memTx) medicine(id pharmacy.MedicineID) (pharmacy.Medicine, bool) {
	if tx.deleted[id] {
		return pharmacy.Medicine{}, false
	}
	if med, ok := tx.medicines[id]; ok {
		return med, true
	}
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	med, ok := tx.m.medicines[id]
	return med, ok
}

// patient returns the row as this unit sees it.
func (tx *memTx) patient(id pharmacy.PatientID) (pharmacy.Patient, bool) {
	for _, p := range tx.patients {
		if p.ID == id {
			return p, true
		}
	}
	if p, ok := tx.edited[id]; ok {
		return p, true
	}
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	p, ok := tx.m.patients[id]
	return p, ok
}

func (tx *memTx) PatientExists(_ context.Context, id pharmacy.PatientID) (bool, error) {
	_, ok := tx.patient(id)
	return ok, nil
}

func (tx *memTx) LockAndFetch(ctx context.Context, ids []pharmacy.MedicineID) (map[pharmacy.MedicineID]pharmacy.Medicine, error) {
	for _, id := range ids {
		if _, ok := tx.medicine(id); !ok {
			return nil, &pharmacy.MedicineNotFoundError{ID: id}
		}
	}

	ordered := append([]pharmacy.MedicineID(nil), ids...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	for _, id := range ordered {
		if err := tx.lock(ctx, medicineKey(id)); err != nil {
			return nil, err
		}
	}

	// Re-read under lock: the row may have changed or vanished while waiting.
	out := make(map[pharmacy.MedicineID]pharmacy.Medicine, len(ids))
	for _, id := range ids {
		med, ok := tx.medicine(id)
		if !ok {
			return nil, &pharmacy.MedicineNotFoundError{ID: id}
		}
		out[id] = med
	}
	return out, nil
}

func (tx *memTx) DecrementStock(_ context.Context, id pharmacy.MedicineID, amount int64, at time.Time) error {
	if amount <= 0 {
		return &pharmacy.ValidationError{Field: "amount", Reason: "must be greater than 0"}
	}
	if !tx.held[medicineKey(id)] {
		return fmt.Errorf("decrement medicine %d: %w", id, pharmacy.ErrNotLocked)
	}
	med, ok := tx.medicine(id)
	if !ok {
		return &pharmacy.MedicineNotFoundError{ID: id}
	}
	if med.StockQuantity < amount {
		return &pharmacy.InsufficientStockError{
			MedicineID: id,
			Name:       med.Name,
			Available:  med.StockQuantity,
			Required:   amount,
		}
	}
	med.StockQuantity -= amount
	med.UpdatedAt = at
	tx.medicines[id] = med
	return nil
}

func (tx *memTx) NextCode(ctx context.Context, series pharmacy.Series) (string, error) {
	if err := tx.lock(ctx, sequenceKey(series.Name)); err != nil {
		return "", err
	}
	n, ok := tx.sequences[series.Name]
	if !ok {
		tx.m.mu.RLock()
		n = tx.m.sequences[series.Name]
		tx.m.mu.RUnlock()
	}
	n++
	tx.sequences[series.Name] = n
	return series.Code(n), nil
}

func (tx *memTx) InsertTransaction(ctx context.Context, t *pharmacy.Transaction) error {
	exists, err := tx.PatientExists(ctx, t.PatientID)
	if err != nil {
		return err
	}
	if !exists {
		return &pharmacy.StorageError{Op: "insert transaction", Err: fmt.Errorf("foreign key: patient %d", t.PatientID)}
	}
	for _, item := range t.Items {
		if _, ok := tx.medicine(item.MedicineID); !ok {
			return &pharmacy.StorageError{Op: "insert transaction item", Err: fmt.Errorf("foreign key: medicine %d", item.MedicineID)}
		}
	}
	for _, staged := range tx.transactions {
		if staged.TransactionCode == t.TransactionCode {
			return &pharmacy.ConflictError{Op: "insert transaction", Err: fmt.Errorf("duplicate code %s", t.TransactionCode)}
		}
	}

	tx.m.mu.Lock()
	t.ID = pharmacy.TransactionID(tx.m.nextIDLocked("transactions"))
	for i := range t.Items {
		t.Items[i].ID = tx.m.nextIDLocked("transaction_items")
		t.Items[i].TransactionID = t.ID
	}
	tx.m.mu.Unlock()

	row := *t
	row.Items = append([]pharmacy.TransactionItem(nil), t.Items...)
	tx.transactions = append(tx.transactions, row)
	return nil
}

func (tx *memTx) InsertUsage(_ context.Context, u *pharmacy.MedicineUsage) error {
	if _, ok := tx.medicine(u.MedicineID); !ok {
		return &pharmacy.StorageError{Op: "insert usage", Err: fmt.Errorf("foreign key: medicine %d", u.MedicineID)}
	}
	tx.m.mu.Lock()
	u.ID = pharmacy.UsageID(tx.m.nextIDLocked("medicine_usage"))
	tx.m.mu.Unlock()
	tx.usage = append(tx.usage, *u)
	return nil
}

func (tx *memTx) LockTransaction(ctx context.Context, id pharmacy.TransactionID) (*pharmacy.Transaction, error) {
	if err := tx.lock(ctx, transactionKey(id)); err != nil {
		return nil, err
	}
	tx.m.mu.RLock()
	t, ok := tx.m.transactions[id]
	tx.m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	t.Items = nil
	if change, ok := tx.statuses[id]; ok {
		t.PaymentStatus = change.status
		t.UpdatedAt = change.at
	}
	return &t, nil
}

func (tx *memTx) SetPaymentStatus(_ context.Context, id pharmacy.TransactionID, status pharmacy.PaymentStatus, at time.Time) error {
	if !tx.held[transactionKey(id)] {
		return fmt.Errorf("set status of transaction %d: %w", id, pharmacy.ErrNotLocked)
	}
	tx.statuses[id] = statusChange{status: status, at: at}
	return nil
}

func (tx *memTx) InsertPatient(_ context.Context, p *pharmacy.Patient) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()

	if tx.emailTakenLocked(p.Email, 0) {
		return pharmacy.ErrDuplicateEmail
	}
	p.ID = pharmacy.PatientID(tx.m.nextIDLocked("patients"))
	tx.patients = append(tx.patients, *p)
	return nil
}

func (tx *memTx) LockPatient(ctx context.Context, id pharmacy.PatientID) (*pharmacy.Patient, error) {
	if err := tx.lock(ctx, patientKey(id)); err != nil {
		return nil, err
	}
	p, ok := tx.patient(id)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (tx *memTx) UpdatePatient(_ context.Context, p pharmacy.Patient) error {
	if !tx.held[patientKey(p.ID)] {
		return fmt.Errorf("update patient %d: %w", p.ID, pharmacy.ErrNotLocked)
	}
	tx.m.mu.RLock()
	taken := tx.emailTakenLocked(p.Email, p.ID)
	tx.m.mu.RUnlock()
	if taken {
		return pharmacy.ErrDuplicateEmail
	}

	for i := range tx.patients {
		if tx.patients[i].ID == p.ID {
			tx.patients[i] = p
			return nil
		}
	}
	tx.edited[p.ID] = p
	return nil
}

// emailTakenLocked reports whether a patient other than self holds email, as
// this unit sees the table. Caller holds m.mu.
func (tx *memTx) emailTakenLocked(email *string, self pharmacy.PatientID) bool {
	if email == nil {
		return false
	}
	for id, existing := range tx.m.patients {
		if edited, ok := tx.edited[id]; ok {
			existing = edited
		}
		if id != self && existing.Email != nil && *existing.Email == *email {
			return true
		}
	}
	for _, staged := range tx.patients {
		if staged.ID != self && staged.Email != nil && *staged.Email == *email {
			return true
		}
	}
	return false
}

func (tx *memTx) InsertMedicine(_ context.Context, med *pharmacy.Medicine) error {
	tx.m.mu.Lock()
	med.ID = pharmacy.MedicineID(tx.m.nextIDLocked("medicines"))
	tx.m.mu.Unlock()
	tx.medicines[med.ID] = *med
	return nil
}

func (tx *memTx) UpdateMedicine(_ context.Context, med pharmacy.Medicine) error {
	if !tx.held[medicineKey(med.ID)] {
		return fmt.Errorf("update medicine %d: %w", med.ID, pharmacy.ErrNotLocked)
	}
	tx.medicines[med.ID] = med
	return nil
}

func (tx *memTx) DeleteMedicine(_ context.Context, id pharmacy.MedicineID) error {
	if !tx.held[medicineKey(id)] {
		return fmt.Errorf("delete medicine %d: %w", id, pharmacy.ErrNotLocked)
	}
	if tx.referenced(id) {
		return pharmacy.ErrMedicineInUse
	}
	delete(tx.medicines, id)
	tx.deleted[id] = true
	return nil
}

func (tx *memTx) referenced(id pharmacy.MedicineID) bool {
	for _, t := range tx.transactions {
		for _, item := range t.Items {
			if item.MedicineID == id {
				return true
			}
		}
	}
	for _, u := range tx.usage {
		if u.MedicineID == id {
			return true
		}
	}

	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	for _, t := range tx.m.transactions {
		for _, item := range t.Items {
			if item.MedicineID == id {
				return true
			}
		}
	}
	for _, u := range tx.m.usage {
		if u.MedicineID == id {
			return true
		}
	}
	return false
}

// commit applies everything staged in one critical section.
func (tx *memTx) commit() error {
	m := tx.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range tx.transactions {
		for _, existing := range m.transactions {
			if existing.TransactionCode == t.TransactionCode {
				return &pharmacy.ConflictError{Op: "commit", Err: fmt.Errorf("duplicate code %s", t.TransactionCode)}
			}
		}
	}

	if len(tx.patients) > 0 || len(tx.edited) > 0 {
		if err := tx.checkEmailsLocked(); err != nil {
			return err
		}
	}

	for id, med := range tx.medicines {
		m.medicines[id] = med
	}
	for id := range tx.deleted {
		delete(m.medicines, id)
	}
	for _, p := range tx.patients {
		m.patients[p.ID] = p
	}
	for id, p := range tx.edited {
		m.patients[id] = p
	}
	for _, t := range tx.transactions {
		m.transactions[t.ID] = t
	}
	for id, change := range tx.statuses {
		t := m.transactions[id]
		t.PaymentStatus = change.status
		t.UpdatedAt = change.at
		m.transactions[id] = t
	}
	m.usage = append(m.usage, tx.usage...)
	for name, n := range tx.sequences {
		m.sequences[name] = n
	}
	return nil
}

// checkEmailsLocked re-checks email uniqueness against rows committed by
// other units since this one staged its patients. Caller holds m.mu.
func (tx *memTx) checkEmailsLocked() error {
	owner := make(map[string]pharmacy.PatientID, len(tx.m.patients))
	claim := func(p pharmacy.Patient) bool {
		if p.Email == nil {
			return true
		}
		if id, ok := owner[*p.Email]; ok && id != p.ID {
			return false
		}
		owner[*p.Email] = p.ID
		return true
	}
	for id, p := range tx.m.patients {
		if edited, ok := tx.edited[id]; ok {
			p = edited
		}
		if !claim(p) {
			return pharmacy.ErrDuplicateEmail
		}
	}
	for _, p := range tx.patients {
		if !claim(p) {
			return pharmacy.ErrDuplicateEmail
		}
	}
	return nil
}

var _ pharmacy.Store = (*Memory)(nil)
