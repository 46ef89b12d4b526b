package report

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/concern"
	"github.com/trezcool/piyuguide/core/counseling"
	"github.com/trezcool/piyuguide/core/inquiry"
	"github.com/trezcool/piyuguide/core/user"
)

const timeLayout = "2006-01-02 15:04"

type (
	InquiryReader interface {
		QueryInquiries(ctx context.Context, filter inquiry.QueryFilter) ([]inquiry.Inquiry, error)
	}

	SessionReader interface {
		QuerySessions(ctx context.Context, filter counseling.QueryFilter, page core.Page) ([]counseling.Session, int, error)
	}

	AuditReader interface {
		Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Entry, error)
	}

	Directory interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		GetOffice(ctx context.Context, id string) (user.Office, error)
	}

	ConcernTypes interface {
		GetTypeByID(ctx context.Context, id string) (concern.ConcernType, error)
	}

	Service struct {
		inquiries InquiryReader
		sessions  SessionReader
		activity  AuditReader
		users     Directory
		concerns  ConcernTypes
		renderers map[string]Renderer
		audit     *audit.Recorder
		clock     core.Clock
		loc       *time.Location
	}
)

func NewService(
	inquiries InquiryReader,
	sessions SessionReader,
	activity AuditReader,
	users Directory,
	concerns ConcernTypes,
	renderers map[string]Renderer,
	recorder *audit.Recorder,
	clock core.Clock,
	conf *core.Config,
) *Service {
	return &Service{
		inquiries: inquiries,
		sessions:  sessions,
		activity:  activity,
		users:     users,
		concerns:  concerns,
		renderers: renderers,
		audit:     recorder,
		clock:     clock,
		loc:       conf.Location(),
	}
}

// Check validates the request before any data is read.
func (svc *Service) Check(req Request) error {
	var missing []core.FieldError
	for field, val := range map[string]string{"report_type": req.ReportType, "date_range": req.DateRange, "format": req.Format} {
		if val == "" {
			missing = append(missing, core.FieldError{Field: field, Error: "this field is required"})
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i].Field < missing[j].Field })
		return core.NewValidationError(nil, missing...)
	}

	supported, ok := formats[req.ReportType]
	if !ok {
		return core.NewValidationError(nil, core.FieldError{Field: "report_type", Error: "unknown report type"})
	}
	if !slices.Contains(supported, req.Format) {
		return core.NewValidationError(nil, core.FieldError{
			Field: "format",
			Error: fmt.Sprintf("%s reports cannot be exported as %s", req.ReportType, req.Format),
		})
	}
	if _, ok = svc.renderers[req.Format]; !ok {
		return core.NewValidationError(nil, core.FieldError{Field: "format", Error: "unsupported format"})
	}
	return nil
}

// Generate aggregates and renders a report of the principal's office.
func (svc *Service) Generate(ctx context.Context, p user.Principal, req Request) (File, error) {
	if !p.IsOfficeAdmin() {
		return File{}, user.ErrNotOfficeAdmin
	}
	if err := svc.Check(req); err != nil {
		return File{}, err
	}

	now := svc.clock.Now()
	d, err := svc.Aggregate(ctx, p.OfficeID, req.ReportType, ResolveRange(req.DateRange, now, svc.loc), req.Filters)
	if err != nil {
		return File{}, err
	}

	rdr := svc.renderers[req.Format]
	buf := new(bytes.Buffer)
	if err = rdr.Render(buf, d); err != nil {
		return File{}, errors.Wrapf(err, "rendering %s report", req.Format)
	}

	svc.audit.Record(ctx, audit.New(p, audit.ActionReportGenerated, audit.TargetReport,
		audit.Details(fmt.Sprintf("%s/%s/%s", req.ReportType, d.Range.Preset, req.Format))))
	return File{
		Name:        fmt.Sprintf("%s_report_%s.%s", req.ReportType, now.In(svc.loc).Format("20060102"), rdr.Extension()),
		ContentType: rdr.ContentType(),
		Content:     buf.Bytes(),
	}, nil
}

// Aggregate reads the office's records of `kind` within r and derives their statistics.
func (svc *Service) Aggregate(ctx context.Context, officeID, kind string, r Range, f Filters) (Data, error) {
	office, err := svc.users.GetOffice(ctx, officeID)
	if err != nil {
		return Data{}, err
	}
	d := Data{
		Kind:        kind,
		OfficeName:  office.Name,
		Range:       r,
		GeneratedAt: svc.clock.Now(),
	}
	n := newNamer(svc.users, svc.concerns)

	switch kind {
	case KindInquiries:
		d.Title = "Inquiries Report"
		inqs, err := svc.queryInquiries(ctx, officeID, r, f)
		if err != nil {
			return Data{}, err
		}
		d.Tables = []Table{svc.inquiryTable(ctx, n, inqs)}
		d.Stats = svc.inquiryStats(inqs, r)
	case KindCounseling:
		d.Title = "Counseling Sessions Report"
		sessions, err := svc.querySessions(ctx, officeID, r, f)
		if err != nil {
			return Data{}, err
		}
		d.Tables = []Table{svc.sessionTable(ctx, n, sessions)}
		d.Stats = svc.sessionStats(sessions, r)
	case KindActivity:
		d.Title = "Activity Report"
		entries, err := svc.activity.Query(ctx, audit.QueryFilter{OfficeID: officeID, From: r.From, To: r.To})
		if err != nil {
			return Data{}, errors.Wrap(err, "querying audit entries")
		}
		d.Tables = []Table{svc.activityTable(entries)}
		d.Stats = svc.activityStats(entries, r)
	case KindSummary:
		d.Title = "Summary Report"
		inqs, err := svc.queryInquiries(ctx, officeID, r, f)
		if err != nil {
			return Data{}, err
		}
		sessions, err := svc.querySessions(ctx, officeID, r, f)
		if err != nil {
			return Data{}, err
		}
		d.Stats = svc.inquiryStats(inqs, r)
		d.Tables = svc.summaryTables(d.Stats, svc.sessionStats(sessions, r))
	default:
		return Data{}, core.NewValidationError(nil, core.FieldError{Field: "report_type", Error: "unknown report type"})
	}
	return d, nil
}

func (svc *Service) queryInquiries(ctx context.Context, officeID string, r Range, f Filters) ([]inquiry.Inquiry, error) {
	inqs, err := svc.inquiries.QueryInquiries(ctx, inquiry.QueryFilter{
		OfficeID:      officeID,
		Status:        f.Status,
		ConcernTypeID: f.ConcernTypeID,
		From:          r.From,
		To:            r.To,
	})
	return inqs, errors.Wrap(err, "querying inquiries")
}

func (svc *Service) querySessions(ctx context.Context, officeID string, r Range, f Filters) ([]counseling.Session, error) {
	sessions, _, err := svc.sessions.QuerySessions(ctx, counseling.QueryFilter{
		OfficeID:      officeID,
		Status:        f.Status,
		ConcernTypeID: f.ConcernTypeID,
		From:          &r.From,
		To:            &r.To,
		Descending:    true,
	}, core.Page{})
	return sessions, errors.Wrap(err, "querying sessions")
}

func (svc *Service) formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(svc.loc).Format(timeLayout)
}

func (svc *Service) inquiryTable(ctx context.Context, n *namer, inqs []inquiry.Inquiry) Table {
	tbl := Table{
		Title:   "Inquiries",
		Columns: []string{"Created", "Subject", "Student", "Concern", "Status", "First Response", "Resolved"},
		Rows:    make([][]string, 0, len(inqs)),
	}
	for _, inq := range inqs {
		tbl.Rows = append(tbl.Rows, []string{
			svc.formatTime(&inq.CreatedAt),
			inq.Subject,
			n.user(ctx, inq.StudentID),
			n.concern(ctx, inq.ConcernTypeID),
			inq.Status,
			svc.formatTime(inq.FirstResponseAt),
			svc.formatTime(inq.ResolvedAt),
		})
	}
	return tbl
}

func (svc *Service) inquiryStats(inqs []inquiry.Inquiry, r Range) Stats {
	st := Stats{Total: len(inqs), StatusBreakdown: make(map[string]int)}
	var (
		responded int
		resolved  int
		total     time.Duration
		created   = make([]time.Time, 0, len(inqs))
	)
	for _, inq := range inqs {
		st.StatusBreakdown[inq.Status]++
		created = append(created, inq.CreatedAt)
		if inq.FirstResponseAt != nil {
			responded++
		}
		if d, ok := inq.ResolutionTime(); ok {
			resolved++
			total += d
		}
	}
	if len(inqs) > 0 {
		st.ResponseRate = round1(float64(responded) * 100 / float64(len(inqs)))
	}
	if resolved > 0 {
		st.AvgResolutionHours = round1(total.Hours() / float64(resolved))
	}
	st.Monthly = monthly(created, r, svc.loc)
	return st
}

func (svc *Service) sessionTable(ctx context.Context, n *namer, sessions []counseling.Session) Table {
	tbl := Table{
		Title:   "Counseling Sessions",
		Columns: []string{"Scheduled", "Student", "Counselor", "Status", "Mode", "Concern", "Ended"},
		Rows:    make([][]string, 0, len(sessions)),
	}
	for _, s := range sessions {
		counselor := ""
		if s.CounselorID != nil {
			counselor = n.user(ctx, *s.CounselorID)
		}
		mode := "In person"
		if s.IsVideoSession {
			mode = "Video"
		}
		tbl.Rows = append(tbl.Rows, []string{
			svc.formatTime(&s.ScheduledAt),
			n.user(ctx, s.StudentID),
			counselor,
			s.Status,
			mode,
			n.concern(ctx, s.NatureOfConcernID),
			svc.formatTime(s.SessionEndedAt),
		})
	}
	return tbl
}

func (svc *Service) sessionStats(sessions []counseling.Session, r Range) Stats {
	st := Stats{Total: len(sessions), StatusBreakdown: make(map[string]int)}
	scheduled := make([]time.Time, 0, len(sessions))
	for _, s := range sessions {
		st.StatusBreakdown[s.Status]++
		scheduled = append(scheduled, s.ScheduledAt)
	}
	st.Monthly = monthly(scheduled, r, svc.loc)
	return st
}

func (svc *Service) activityTable(entries []audit.Entry) Table {
	tbl := Table{
		Title:   "Activity",
		Columns: []string{"Time", "Actor", "Role", "Action", "Target", "Status", "Details", "Result"},
		Rows:    make([][]string, 0, len(entries)),
	}
	for _, e := range entries {
		result := "success"
		if !e.Success {
			result = "failed"
		}
		tbl.Rows = append(tbl.Rows, []string{
			svc.formatTime(&e.CreatedAt),
			e.ActorName,
			e.ActorRole,
			e.Action,
			e.TargetType,
			e.Status,
			e.Details,
			result,
		})
	}
	return tbl
}

// activityStats breaks entries down by action.
func (svc *Service) activityStats(entries []audit.Entry, r Range) Stats {
	st := Stats{Total: len(entries), StatusBreakdown: make(map[string]int)}
	times := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		st.StatusBreakdown[e.Action]++
		times = append(times, e.CreatedAt)
	}
	st.Monthly = monthly(times, r, svc.loc)
	return st
}

func (svc *Service) summaryTables(inq, sess Stats) []Table {
	overview := Table{
		Title:   "Overview",
		Columns: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Total inquiries", strconv.Itoa(inq.Total)},
			{"Response rate (%)", formatFloat(inq.ResponseRate)},
			{"Average resolution (hours)", formatFloat(inq.AvgResolutionHours)},
			{"Total counseling sessions", strconv.Itoa(sess.Total)},
			{"Completed sessions", strconv.Itoa(sess.StatusBreakdown[counseling.StatusCompleted])},
			{"No-shows", strconv.Itoa(sess.StatusBreakdown[counseling.StatusNoShow])},
			{"Cancelled sessions", strconv.Itoa(sess.StatusBreakdown[counseling.StatusCancelled])},
		},
	}
	months := Table{Title: "Monthly Trend", Columns: []string{"Month", "Inquiries", "Change", "Sessions", "Change"}}
	for i, m := range inq.Monthly {
		row := []string{m.Month, strconv.Itoa(m.Count), signed(m.Delta), "0", "0"}
		if i < len(sess.Monthly) {
			row[3], row[4] = strconv.Itoa(sess.Monthly[i].Count), signed(sess.Monthly[i].Delta)
		}
		months.Rows = append(months.Rows, row)
	}
	return []Table{
		overview,
		breakdownTable("Inquiries by Status", inquiry.Statuses, inq.StatusBreakdown),
		breakdownTable("Sessions by Status", counseling.Statuses, sess.StatusBreakdown),
		months,
	}
}

func breakdownTable(title string, statuses []string, counts map[string]int) Table {
	tbl := Table{Title: title, Columns: []string{"Status", "Count"}}
	for _, s := range statuses {
		tbl.Rows = append(tbl.Rows, []string{s, strconv.Itoa(counts[s])})
	}
	return tbl
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}

func signed(n int) string {
	if n > 0 {
		return "+" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// namer resolves and caches display names of users and concern types.
type namer struct {
	users    Directory
	concerns ConcernTypes
	names    map[string]string
}

func newNamer(users Directory, concerns ConcernTypes) *namer {
	return &namer{users: users, concerns: concerns, names: make(map[string]string)}
}

func (n *namer) user(ctx context.Context, id string) string {
	if name, ok := n.names["u:"+id]; ok {
		return name
	}
	name := ""
	if usr, err := n.users.GetByID(ctx, id); err == nil {
		name = usr.Name
	}
	n.names["u:"+id] = name
	return name
}

func (n *namer) concern(ctx context.Context, id *string) string {
	if id == nil {
		return ""
	}
	if name, ok := n.names["c:"+*id]; ok {
		return name
	}
	name := ""
	if ct, err := n.concerns.GetTypeByID(ctx, *id); err == nil {
		name = ct.Name
	}
	n.names["c:"+*id] = name
	return name
}
