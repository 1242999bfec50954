// Package tui provides a terminal dashboard for the hostel allocation server.
package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/klubi/hostel/pkg/apis/v1alpha1"
	"github.com/klubi/hostel/pkg/client"
)

type view string

const (
	viewStudents    view = "students"
	viewRooms       view = "rooms"
	viewAllocations view = "allocations"
)

// refreshInterval is how often the dashboard polls the server.
const refreshInterval = 2 * time.Second

// App polls the hostel REST API and shows students, rooms and allocations
// in a navigable table.
type App struct {
	app         *tview.Application
	pages       *tview.Pages
	header      *tview.TextView
	footer      *tview.TextView
	table       *tview.Table
	filterInput *tview.InputField
	detailView  *tview.TextView
	layout      *tview.Flex
	mainFlex    *tview.Flex

	client *client.Client

	mu          sync.Mutex
	currentView view
	filter      string
	snap        snapshot
	lastErr     error

	describeOpen bool
	filterOpen   bool
}

// snapshot is the data from the last successful refresh.
type snapshot struct {
	students    []v1alpha1.Student
	rooms       []v1alpha1.Room
	allocations []v1alpha1.Allocation
	stats       *v1alpha1.AllocationStats
}

// NewApp creates a dashboard that talks to the server through c.
func NewApp(c *client.Client) *App {
	a := &App{
		app:         tview.NewApplication(),
		client:      c,
		currentView: viewStudents,
	}

	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)

	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)

	a.table = tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0).
		SetSeparator(tview.Borders.Vertical)
	a.table.SetBorderPadding(0, 0, 1, 1)

	a.filterInput = tview.NewInputField().
		SetLabel(" Filter: ").
		SetFieldWidth(40).
		SetFieldBackgroundColor(tcell.ColorBlack).
		SetLabelColor(tcell.ColorYellow)
	a.filterInput.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			a.setFilter(a.filterInput.GetText())
		case tcell.KeyEscape:
			a.filterInput.SetText("")
			a.setFilter("")
		default:
			return
		}
		a.hideFilter()
		a.updateTable()
	})

	a.detailView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	a.detailView.SetBorder(true).
		SetTitle(" Describe ").
		SetBorderColor(tcell.ColorDodgerBlue)

	a.layout = tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.table, 0, 1, true)

	a.mainFlex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 1, 0, false).
		AddItem(a.layout, 0, 1, true).
		AddItem(a.footer, 1, 0, false)

	a.pages = tview.NewPages().
		AddPage("main", a.mainFlex, true, true)

	a.updateHeader()
	a.updateFooter()
	a.setupKeyBindings()

	a.app.SetRoot(a.pages, true).SetFocus(a.table)

	return a
}

// Run starts the background poller and the event loop.
func (a *App) Run() error {
	a.refresh()
	a.updateTable()

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for range ticker.C {
			a.refreshAsync()
		}
	}()

	return a.app.Run()
}

func (a *App) setupKeyBindings() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.filterOpen || a.pages.HasPage("confirm") {
			return event
		}

		if a.describeOpen && event.Key() == tcell.KeyEscape {
			a.hideDescribe()
			return nil
		}

		switch event.Key() {
		case tcell.KeyRune:
			switch event.Rune() {
			case '1':
				a.switchView(viewStudents)
			case '2':
				a.switchView(viewRooms)
			case '3':
				a.switchView(viewAllocations)
			case '/':
				a.showFilter()
			case 'q':
				a.app.Stop()
			case 'r':
				go a.refreshAsync()
			case 'a':
				a.confirm("Run allocation for all waiting students?", "Allocate", a.runAllocation)
			case 'x':
				a.confirmRelease()
			case 'd':
				a.confirmDelete()
			case 'j':
				row, _ := a.table.GetSelection()
				if row < a.table.GetRowCount()-1 {
					a.table.Select(row+1, 0)
				}
			case 'k':
				row, _ := a.table.GetSelection()
				if row > 1 {
					a.table.Select(row-1, 0)
				}
			default:
				return event
			}
			return nil
		case tcell.KeyEnter:
			a.showDescribe()
			return nil
		case tcell.KeyEscape:
			if a.currentFilter() != "" {
				a.setFilter("")
				a.updateTable()
			}
			return nil
		}

		return event
	})
}

func (a *App) switchView(v view) {
	a.mu.Lock()
	a.currentView = v
	a.mu.Unlock()

	a.hideDescribe()
	a.updateHeader()
	a.updateTable()
}

func (a *App) setFilter(f string) {
	a.mu.Lock()
	a.filter = f
	a.mu.Unlock()
	a.updateHeader()
}

func (a *App) currentFilter() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filter
}

// refresh loads every view at once so switching views never waits on the
// network.
func (a *App) refresh() {
	var snap snapshot
	var err error

	snap.students, err = a.client.ListStudents()
	if err == nil {
		snap.rooms, err = a.client.ListRooms()
	}
	if err == nil {
		snap.allocations, err = a.client.ListAllocations(client.AllocationFilter{})
	}
	if err == nil {
		snap.stats, err = a.client.Stats()
	}

	a.mu.Lock()
	if err == nil {
		a.snap = snap
	}
	a.lastErr = err
	a.mu.Unlock()
}

func (a *App) refreshAsync() {
	a.refresh()
	a.app.QueueUpdateDraw(func() {
		a.updateHeader()
		a.updateTable()
	})
}

func (a *App) updateTable() {
	row, _ := a.table.GetSelection()
	a.table.Clear()

	a.mu.Lock()
	v := a.currentView
	filter := strings.ToLower(a.filter)
	snap := a.snap
	err := a.lastErr
	a.mu.Unlock()

	if err != nil {
		a.setTableHeaders([]string{"ERROR"})
		a.table.SetCell(1, 0,
			tview.NewTableCell(fmt.Sprintf("Error: %v", err)).
				SetTextColor(tcell.ColorRed))
		return
	}

	var t tableData
	switch v {
	case viewStudents:
		t = studentTable(snap.students, filter)
	case viewRooms:
		t = roomTable(snap.rooms, filter)
	case viewAllocations:
		t = allocationTable(snap.allocations, filter)
	}

	a.setTableHeaders(t.headers)
	for r, cells := range t.rows {
		for c, text := range cells {
			cell := tview.NewTableCell(text).SetExpansion(1)
			if c == t.colorColumn {
				cell.SetTextColor(t.color(text))
			}
			a.table.SetCell(r+1, c, cell)
		}
	}

	// Keep the cursor where it was across refreshes.
	switch n := a.table.GetRowCount(); {
	case n <= 1:
	case row >= 1 && row < n:
		a.table.Select(row, 0)
	default:
		a.table.Select(1, 0)
	}
}

func (a *App) setTableHeaders(headers []string) {
	for col, h := range headers {
		cell := tview.NewTableCell(h).
			SetTextColor(tcell.ColorWhite).
			SetBackgroundColor(tcell.ColorDarkCyan).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false).
			SetExpansion(1)
		a.table.SetCell(0, col, cell)
	}
}

// selectedName returns the first column of the selected row.
func (a *App) selectedName() (string, bool) {
	row, _ := a.table.GetSelection()
	if row < 1 || row >= a.table.GetRowCount() {
		return "", false
	}
	return a.table.GetCell(row, 0).Text, true
}

func (a *App) showDescribe() {
	name, ok := a.selectedName()
	if !ok {
		return
	}

	a.mu.Lock()
	v := a.currentView
	a.mu.Unlock()

	var detail string
	switch v {
	case viewStudents:
		st, err := a.client.GetStudent(name)
		if err != nil {
			detail = fmt.Sprintf("[red]Error: %v[-]", err)
			break
		}
		var mates []v1alpha1.Student
		if st.IsAllocated() {
			mates, _ = a.client.Roommates(name)
		}
		detail = describeStudent(st, mates)
	case viewRooms:
		r, err := a.client.GetRoom(name)
		if err != nil {
			detail = fmt.Sprintf("[red]Error: %v[-]", err)
			break
		}
		detail = describeRoom(r)
	case viewAllocations:
		al, err := a.client.GetAllocation(name)
		if err != nil {
			detail = fmt.Sprintf("[red]Error: %v[-]", err)
			break
		}
		detail = describeAllocation(al)
	}

	a.detailView.SetText(detail).ScrollToBeginning()

	if !a.describeOpen {
		a.layout.AddItem(a.detailView, 0, 1, false)
		a.describeOpen = true
	}
}

func (a *App) hideDescribe() {
	if a.describeOpen {
		a.layout.RemoveItem(a.detailView)
		a.describeOpen = false
		a.app.SetFocus(a.table)
	}
}

func (a *App) showFilter() {
	if a.filterOpen {
		return
	}
	a.filterOpen = true
	a.filterInput.SetText(a.currentFilter())

	a.mainFlex.RemoveItem(a.footer)
	a.mainFlex.AddItem(a.filterInput, 1, 0, true)
	a.app.SetFocus(a.filterInput)
}

func (a *App) hideFilter() {
	if !a.filterOpen {
		return
	}
	a.filterOpen = false

	a.mainFlex.RemoveItem(a.filterInput)
	a.mainFlex.AddItem(a.footer, 1, 0, false)
	a.app.SetFocus(a.table)
}

// confirm shows a modal and calls action on a background goroutine when the
// user picks the action button.
func (a *App) confirm(text, button string, action func()) {
	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{button, "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			a.pages.RemovePage("confirm")
			a.app.SetFocus(a.table)
			if label == button {
				go action()
			}
		})
	modal.SetBackgroundColor(tcell.ColorDarkRed)

	a.pages.AddPage("confirm", modal, true, true)
}

func (a *App) confirmDelete() {
	name, ok := a.selectedName()
	if !ok {
		return
	}

	a.mu.Lock()
	v := a.currentView
	a.mu.Unlock()

	var del func(string) error
	switch v {
	case viewStudents:
		del = a.client.DeleteStudent
	case viewRooms:
		del = a.client.DeleteRoom
	default:
		a.flash("[yellow]Allocations are released, not deleted (x)[-]")
		return
	}

	a.confirm(fmt.Sprintf("Delete %s %q?", strings.TrimSuffix(string(v), "s"), name), "Delete", func() {
		if err := del(name); err != nil {
			a.flashAsync(fmt.Sprintf("[red]Delete failed: %v[-]", err))
			return
		}
		a.refreshAsync()
	})
}

func (a *App) confirmRelease() {
	a.mu.Lock()
	v := a.currentView
	a.mu.Unlock()
	if v != viewAllocations {
		return
	}
	name, ok := a.selectedName()
	if !ok {
		return
	}

	a.confirm(fmt.Sprintf("Release allocation %q?", name), "Release", func() {
		if _, err := a.client.Release(name); err != nil {
			a.flashAsync(fmt.Sprintf("[red]Release failed: %v[-]", err))
			return
		}
		a.refreshAsync()
	})
}

func (a *App) runAllocation() {
	result, err := a.client.RunAllocation()
	if err != nil {
		a.flashAsync(fmt.Sprintf("[red]Allocation failed: %v[-]", err))
		return
	}
	a.flashAsync("[green]" + tview.Escape(result.Message) + "[-]")
	a.refreshAsync()
}

// flash shows a message in the footer for a few seconds. Must be called on
// the UI goroutine.
func (a *App) flash(msg string) {
	a.footer.SetText(" " + msg)
	go func() {
		time.Sleep(3 * time.Second)
		a.app.QueueUpdateDraw(a.updateFooter)
	}()
}

func (a *App) flashAsync(msg string) {
	a.app.QueueUpdateDraw(func() { a.flash(msg) })
}

func (a *App) updateHeader() {
	views := []struct {
		key  string
		view view
		name string
	}{
		{"1", viewStudents, "Students"},
		{"2", viewRooms, "Rooms"},
		{"3", viewAllocations, "Allocations"},
	}

	a.mu.Lock()
	current := a.currentView
	filter := a.filter
	stats := a.snap.stats
	a.mu.Unlock()

	var parts []string
	for _, v := range views {
		if v.view == current {
			parts = append(parts, fmt.Sprintf("[::b]<%s>[%s][::-]", v.key, v.name))
		} else {
			parts = append(parts, fmt.Sprintf("<%s>%s", v.key, v.name))
		}
	}

	summary := ""
	if stats != nil {
		summary = fmt.Sprintf(" | %d/%d allocated, avg %.1f",
			stats.ActiveAllocations, stats.TotalStudents, stats.AverageScore)
	}
	filterInfo := ""
	if filter != "" {
		filterInfo = fmt.Sprintf(" | [yellow]filter: %s[-]", tview.Escape(filter))
	}

	a.header.SetText(fmt.Sprintf(" [::b]Hostel[::-] | %s | %s%s%s",
		a.client.BaseURL(), strings.Join(parts, "  "), summary, filterInfo))
}

func (a *App) updateFooter() {
	a.footer.SetText(" [yellow]<enter>[white]Describe  [yellow]<a>[white]Allocate  [yellow]<x>[white]Release  [yellow]<d>[white]Delete  [yellow]</>[white]Filter  [yellow]<r>[white]Refresh  [yellow]<q>[white]Quit")
}
