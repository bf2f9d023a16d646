package panel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/libraryops/patron-blocks/internal/blocks"
	"github.com/libraryops/patron-blocks/internal/i18n"
	"github.com/libraryops/patron-blocks/internal/models"
	"github.com/libraryops/patron-blocks/pkg/logger"
)

// Store is the record store as seen by a panel.
type Store interface {
	ListManualBlocks(ctx context.Context, patronID string) ([]models.ManualBlock, error)
	ListAutomatedBlocks(ctx context.Context, patronID string, limit int) ([]models.AutomatedBlock, error)
	SetActiveRecord(ctx context.Context, patronID, blockID string) error
	DeleteManualBlock(ctx context.Context, id string) error
}

// Permissions answers capability lookups for the user viewing the panel.
type Permissions interface {
	HasPermission(capability string) bool
}

// Navigator moves the UI to another route.
type Navigator interface {
	NavigateTo(path string)
}

// Host is the accordion that contains the panel.
type Host struct {
	AccordionID string
	Expanded    bool
	// OnToggle asks the host to flip the accordion. It is called without the panel lock held.
	OnToggle func(accordionID string)
}

// ExpiryState tracks whether expired blocks are being removed.
type ExpiryState int

// Expiry states.
const (
	Idle ExpiryState = iota
	ExpiringInFlight
)

func (s ExpiryState) String() string {
	if s == ExpiringInFlight {
		return "expiring"
	}
	return "idle"
}

// ClickEvent describes the element a row click originated from.
type ClickEvent struct {
	TargetType string `json:"targetType"`
	TagName    string `json:"tagName"`
}

// Option configures a Panel.
type Option func(*Panel)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Panel) {
		p.now = now
	}
}

// WithPermissions sets the capability source. Without one every capability is denied.
func WithPermissions(perms Permissions) Option {
	return func(p *Panel) {
		p.perms = perms
	}
}

// WithNavigator sets the navigator called on row clicks.
func WithNavigator(nav Navigator) Option {
	return func(p *Panel) {
		p.nav = nav
	}
}

// WithHost attaches the panel to its accordion.
func WithHost(host Host) Option {
	return func(p *Panel) {
		p.host = host
	}
}

// WithNotifier announces every block the panel removes.
func WithNotifier(n blocks.Notifier) Option {
	return func(p *Panel) {
		p.notifier = n
	}
}

// Panel is the patron blocks panel of one patron.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Panel struct {
	id       string
	patronID string
	cfg      Config
	store    Store
	perms    Permissions
	nav      Navigator
	host     Host
	notifier blocks.Notifier
	expirer  *blocks.Expirer
	now      func() time.Time

	mu          sync.Mutex
	mounted     bool
	closed      bool
	expanded    bool
	manual      []models.Block
	automated   []models.Block
	sort        *blocks.SortState
	state       ExpiryState
	inflight    *Expiry
	attempts    map[string]int
	quarantined map[string]struct{}
	retired     map[string]struct{}
}

// New creates an unmounted panel for patronID.
func New(cfg Config, patronID string, store Store, opts ...Option) *Panel {
	p := &Panel{
		id:          uuid.NewString(),
		patronID:    patronID,
		cfg:         cfg,
		store:       store,
		now:         time.Now,
		sort:        blocks.NewSortState(),
		attempts:    make(map[string]int),
		quarantined: make(map[string]struct{}),
		retired:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.expanded = p.host.Expanded
	expirerOpts := []blocks.ExpirerOption{
		blocks.WithConcurrency(cfg.ExpiryConcurrency),
		blocks.WithSource("panel"),
	}
	if p.notifier != nil {
		expirerOpts = append(expirerOpts, blocks.WithNotifier(p.notifier))
	}
	p.expirer = blocks.NewExpirer(store, expirerOpts...)
	return p
}

// ID returns the panel id.
func (p *Panel) ID() string { return p.id }

// PatronID returns the patron the panel shows.
func (p *Panel) PatronID() string { return p.patronID }

// Expanded reports the accordion state as last decided by the panel.
func (p *Panel) Expanded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expanded
}

// State returns the expiry state.
func (p *Panel) State() ExpiryState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Mount loads the patron's blocks and opens or closes the accordion depending on
// whether any manual block is active. It runs once per panel.
func (p *Panel) Mount(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPanelClosed
	}
	if p.mounted {
		p.mu.Unlock()
		return ErrAlreadyMounted
	}
	p.mounted = true
	p.manual = nil
	p.mu.Unlock()

	mountsTotal.Inc()

	manual, automated, err := p.fetch(ctx)
	if manual == nil && err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPanelClosed
	}
	p.ingest(manual, automated)

	active := blocks.Active(p.manual, p.now().UTC())
	toggle := (len(active) > 0 && !p.expanded) || (len(active) == 0 && p.expanded)
	if toggle {
		p.expanded = !p.expanded
	}
	p.mu.Unlock()

	if toggle && p.host.OnToggle != nil {
		p.host.OnToggle(p.host.AccordionID)
	}
	return err
}

// Refresh re-fetches the patron's blocks and starts removing any that expired.
// The accordion is left alone.
func (p *Panel) Refresh(ctx context.Context) (*Expiry, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPanelClosed
	}
	p.mu.Unlock()

	manual, automated, err := p.fetch(ctx)
	if manual == nil && err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPanelClosed
	}
	p.ingest(manual, automated)
	p.mu.Unlock()

	return p.Update(ctx), err
}

// fetch loads both block kinds concurrently. Manual blocks are required; a failed
// automated fetch is logged and reported alongside an empty automated list.
func (p *Panel) fetch(ctx context.Context) ([]models.Block, []models.Block, error) {
	var (
		wg           sync.WaitGroup
		manualRaw    []models.ManualBlock
		automatedRaw []models.AutomatedBlock
		manualErr    error
		automatedErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		manualRaw, manualErr = p.store.ListManualBlocks(ctx, p.patronID)
	}()
	go func() {
		defer wg.Done()
		automatedRaw, automatedErr = p.store.ListAutomatedBlocks(ctx, p.patronID, p.cfg.AutomatedLimit)
	}()
	wg.Wait()

	if manualErr != nil {
		logger.Log.Error("Failed to fetch manual blocks",
			zap.Error(manualErr),
			zap.String("patronId", p.patronID),
			zap.String("panelId", p.id),
		)
		return nil, nil, fmt.Errorf("fetch manual blocks: %w", manualErr)
	}

	var err error
	if automatedErr != nil {
		logger.Log.Warn("Failed to fetch automated blocks",
			zap.Error(automatedErr),
			zap.String("patronId", p.patronID),
			zap.String("panelId", p.id),
		)
		err = fmt.Errorf("fetch automated blocks: %w: %w", ErrAutomatedUnavailable, automatedErr)
		automatedRaw = nil
	}

	manual := blocks.FromManual(manualRaw)
	if manual == nil {
		manual = []models.Block{}
	}
	return manual, blocks.FromAutomated(automatedRaw), err
}

// ingest replaces the cached blocks. Blocks this panel already deleted are dropped
// even if a lagging store still returns them. Callers hold p.mu.
func (p *Panel) ingest(manual, automated []models.Block) {
	kept := manual[:0:0]
	for _, b := range manual {
		if _, gone := p.retired[b.ID]; gone {
			continue
		}
		kept = append(kept, b)
	}
	p.manual = kept
	p.automated = automated
}

// Update starts removing the expired manual blocks. It returns nil when nothing is
// dispatched: the panel is closed, a removal is already in flight, or no eligible
// block has expired. Otherwise the panel stays in ExpiringInFlight until every
// dispatched block is acknowledged.
func (p *Panel) Update(ctx context.Context) *Expiry {
	p.mu.Lock()
	if p.closed || p.state == ExpiringInFlight {
		p.mu.Unlock()
		return nil
	}

	var due []models.Block
	for _, b := range blocks.Expired(p.manual, p.now().UTC()) {
		if _, skip := p.quarantined[b.ID]; skip {
			continue
		}
		due = append(due, b)
	}
	if len(due) == 0 {
		p.mu.Unlock()
		return nil
	}

	exp := newExpiry(due)
	p.state = ExpiringInFlight
	p.inflight = exp
	p.mu.Unlock()

	// the removal outlives the request that triggered it
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ExpiryTimeout)
	go func() {
		defer cancel()
		report := p.expirer.Expire(runCtx, due)
		p.acknowledge(report)
		exp.finish(report)
	}()

	return exp
}

func (p *Panel) acknowledge(report blocks.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := make(map[string]struct{}, len(report.Removed))
	for _, b := range report.Removed {
		removed[b.ID] = struct{}{}
		p.retired[b.ID] = struct{}{}
		delete(p.attempts, b.ID)
	}
	kept := p.manual[:0:0]
	for _, b := range p.manual {
		if _, ok := removed[b.ID]; !ok {
			kept = append(kept, b)
		}
	}
	p.manual = kept

	for _, f := range report.Failed {
		p.attempts[f.Block.ID]++
		if p.cfg.MaxExpiryAttempts > 0 && p.attempts[f.Block.ID] >= p.cfg.MaxExpiryAttempts {
			p.quarantined[f.Block.ID] = struct{}{}
			logger.Log.Error("Giving up on expired block",
				zap.Error(f.Err),
				zap.String("blockId", f.Block.ID),
				zap.String("patronId", p.patronID),
				zap.Int("attempts", p.attempts[f.Block.ID]),
			)
		}
	}

	p.state = Idle
	p.inflight = nil
}

// Wait blocks until the in-flight removal, if any, is acknowledged.
func (p *Panel) Wait(ctx context.Context) error {
	p.mu.Lock()
	exp := p.inflight
	p.mu.Unlock()
	if exp == nil {
		return nil
	}
	_, err := exp.Wait(ctx)
	return err
}

// Sort toggles the sort state for a column alias. Unknown aliases are ignored and
// reported as false.
func (p *Panel) Sort(alias string, loc blocks.Localizer) bool {
	key, ok := blocks.ParseSortKey(alias, loc)
	if !ok {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sort.Toggle(key)
}

// RowClick opens the edit route of a manual block. Clicks from buttons and images
// inside the row, clicks on rows the panel does not show as manual blocks, and
// clicks from users without the capability are suppressed. WithViewer replaces the
// permissions the panel was created with.
func (p *Panel) RowClick(ev ClickEvent, rowID string, opts ...ViewOption) (string, bool) {
	if !p.permitted(collectViewOptions(opts)) {
		return "", false
	}
	if strings.EqualFold(ev.TargetType, "button") || strings.EqualFold(ev.TagName, "IMG") {
		return "", false
	}

	p.mu.Lock()
	found := false
	for _, b := range blocks.Active(p.manual, p.now().UTC()) {
		if b.ID == rowID {
			found = true
			break
		}
	}
	p.mu.Unlock()
	if !found {
		return "", false
	}

	path := fmt.Sprintf(p.cfg.EditRoute, url.PathEscape(p.patronID), url.PathEscape(rowID))
	if p.nav != nil {
		p.nav.NavigateTo(path)
	}
	return path, true
}

// Close tears the panel down. Fetches and removals still running finish, but their
// results no longer change what the panel shows.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Closed reports whether Close was called.
func (p *Panel) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Action is a button the UI may render.
type Action struct {
	Label    string `json:"label"`
	Path     string `json:"path"`
	Disabled bool   `json:"disabled"`
}

// SortIndicator describes the current primary sort column.
type SortIndicator struct {
	Key        blocks.SortKey      `json:"key"`
	Direction  blocks.Direction    `json:"direction"`
	Ending     string              `json:"ending"`
	Order      []blocks.SortKey    `json:"order"`
	Directions [2]blocks.Direction `json:"directions"`
}

// View is the rendered state of a panel.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type View struct {
	PanelID         string              `json:"panelId"`
	PatronID        string              `json:"patronId"`
	Label           string              `json:"label"`
	AccordionID     string              `json:"accordionId,omitempty"`
	Expanded        bool                `json:"expanded"`
	HasPatronBlocks bool                `json:"hasPatronBlocks"`
	ExpiryState     string              `json:"expiryState"`
	Columns         map[string]string   `json:"columns"`
	Rows            []models.DisplayRow `json:"rows"`
	Sort            SortIndicator       `json:"sort"`
	Create          Action              `json:"create"`
}

type viewOptions struct {
	viewer    Permissions
	applySort bool
}

// ViewOption configures View and RowClick.
type ViewOption func(*viewOptions)

func collectViewOptions(opts []ViewOption) viewOptions {
	var o viewOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithViewer checks capabilities against perms for this call only.
func WithViewer(perms Permissions) ViewOption {
	return func(o *viewOptions) {
		o.viewer = perms
	}
}

func (p *Panel) permitted(o viewOptions) bool {
	perms := p.perms
	if o.viewer != nil {
		perms = o.viewer
	}
	return perms != nil && perms.HasPermission(p.cfg.Permission)
}

// WithAppliedSort sorts the rows by the primary then secondary column. Without it the
// rows keep merge order: automated blocks first, then manual blocks newest first.
func WithAppliedSort() ViewOption {
	return func(o *viewOptions) {
		o.applySort = true
	}
}

// View renders the active blocks with labels from loc.
func (p *Panel) View(loc blocks.Localizer, opts ...ViewOption) View {
	o := collectViewOptions(opts)

	p.mu.Lock()
	merged := blocks.Merge(p.automated, p.manual, p.now().UTC())
	sortState := p.sort.Clone()
	expanded := p.expanded
	state := p.state
	p.mu.Unlock()

	f := blocks.NewFormatter(loc)
	rows := f.Rows(merged)
	if o.applySort {
		sortState.Apply(rows)
	}

	key, dir := sortState.Primary()
	canCreate := p.permitted(o)

	return View{
		PanelID:         p.id,
		PatronID:        p.patronID,
		Label:           loc.Localize(i18n.MsgPanelLabel),
		AccordionID:     p.host.AccordionID,
		Expanded:        expanded,
		HasPatronBlocks: len(rows) > 0,
		ExpiryState:     state.String(),
		Columns: map[string]string{
			string(blocks.SortKeyType):        loc.Localize(i18n.MsgColumnType),
			string(blocks.SortKeyDescription): loc.Localize(i18n.MsgColumnDesc),
			string(blocks.SortKeyBlocked):     loc.Localize(i18n.MsgColumnBlocked),
		},
		Rows: rows,
		Sort: SortIndicator{
			Key:        key,
			Direction:  dir,
			Ending:     dir.Ending(),
			Order:      sortState.Order(),
			Directions: sortState.Directions(),
		},
		Create: Action{
			Label:    loc.Localize(i18n.MsgCreateButton),
			Path:     fmt.Sprintf(p.cfg.CreateRoute, url.PathEscape(p.patronID)),
			Disabled: !canCreate,
		},
	}
}

// Expiry is the pending removal of a batch of expired blocks.
type Expiry struct {
	blocks []models.Block
	done   chan struct{}
	report blocks.Report
}

func newExpiry(due []models.Block) *Expiry {
	return &Expiry{blocks: due, done: make(chan struct{})}
}

func (e *Expiry) finish(report blocks.Report) {
	e.report = report
	close(e.done)
}

// Blocks returns the blocks dispatched for removal.
func (e *Expiry) Blocks() []models.Block { return e.blocks }

// Done is closed once every dispatched block is acknowledged.
func (e *Expiry) Done() <-chan struct{} { return e.done }

// Wait blocks until the removal is acknowledged or ctx ends. The returned error
// combines the failed removals.
func (e *Expiry) Wait(ctx context.Context) (blocks.Report, error) {
	select {
	case <-e.done:
		return e.report, e.report.Err()
	case <-ctx.Done():
		return blocks.Report{}, ctx.Err()
	}
}

// IsFetchError reports whether err came from loading blocks rather than from the
// panel lifecycle.
func IsFetchError(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrPanelClosed) &&
		!errors.Is(err, ErrAlreadyMounted)
}
