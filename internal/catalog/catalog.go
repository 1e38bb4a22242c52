// Package catalog loads event and account catalogs written in CUE and seeds
// them into an authority. A catalog is unified with an embedded schema, so
// structural mistakes are reported with file positions before anything is
// written.
//
//	account: "42": {name: "Ana", email: "ana@x.com"}
//	event: E1: {
//		title: "Workshop"
//		requirements: {attendance: true, evaluation: true}
//		roster: [{user: "42"}, {name: "Bo", email: "bo@x.com"}]
//	}
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/go-playground/validator/v10"

	"github.com/vpaa/eventcore/internal/model"
)

//go:embed schema.cue
var schemaSource string

// Catalog is a decoded, validated catalog in source order.
type Catalog struct {
	Accounts []model.Account
	Events   []Entry
}

// Entry is one event together with the identities to enroll in it.
type Entry struct {
	Event  model.Event
	Roster []model.JoinRequest
}

// Error is a catalog problem, positioned in the source when CUE knows where.
type Error struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

type eventDoc struct {
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Date         string             `json:"date"`
	TimeStart    string             `json:"time_start"`
	TimeEnd      string             `json:"time_end"`
	Location     string             `json:"location"`
	Status       string             `json:"status"`
	Requirements model.Requirements `json:"requirements"`
	Roster       []rowDoc           `json:"roster" validate:"dive"`
}

type rowDoc struct {
	User  string `json:"user"`
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
}

type accountDoc struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"required,email"`
}

// Load reads a catalog from a .cue file or from a directory of them.
func Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	ctx := cuecontext.New()
	var data cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &Error{Path: path, Message: "no CUE instances loaded"}
		}
		if err := instances[0].Err; err != nil {
			return nil, formatCUEError(err, path)
		}
		data = ctx.BuildInstance(instances[0])
	} else {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		data = ctx.CompileBytes(src, cue.Filename(filepath.Base(path)))
	}
	return build(ctx, data)
}

// Parse decodes a catalog held in memory. filename is used in positions.
func Parse(filename string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	return build(ctx, ctx.CompileBytes(src, cue.Filename(filename)))
}

func build(ctx *cue.Context, data cue.Value) (*Catalog, error) {
	if err := data.Err(); err != nil {
		return nil, formatCUEError(err, "catalog")
	}
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err, "schema")
	}

	v := schema.Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err, "catalog")
	}

	validate := validator.New()
	out := &Catalog{}

	accounts, err := v.LookupPath(cue.ParsePath("account")).Fields()
	if err != nil {
		return nil, formatCUEError(err, "account")
	}
	for accounts.Next() {
		id := accounts.Label()
		path := "account." + id
		var doc accountDoc
		if err := accounts.Value().Decode(&doc); err != nil {
			return nil, formatCUEError(err, path)
		}
		if err := validate.Struct(doc); err != nil {
			return nil, &Error{Path: path, Message: err.Error(), Pos: accounts.Value().Pos()}
		}
		out.Accounts = append(out.Accounts, model.Account{
			ID:    id,
			Name:  strings.TrimSpace(doc.Name),
			Email: strings.TrimSpace(doc.Email),
		})
	}

	events, err := v.LookupPath(cue.ParsePath("event")).Fields()
	if err != nil {
		return nil, formatCUEError(err, "event")
	}
	for events.Next() {
		id := events.Label()
		path := "event." + id
		var doc eventDoc
		if err := events.Value().Decode(&doc); err != nil {
			return nil, formatCUEError(err, path)
		}
		if err := validate.Struct(doc); err != nil {
			return nil, &Error{Path: path, Message: err.Error(), Pos: events.Value().Pos()}
		}
		entry := Entry{Event: model.Event{
			ID:           id,
			Title:        doc.Title,
			Description:  doc.Description,
			Date:         doc.Date,
			TimeStart:    doc.TimeStart,
			TimeEnd:      doc.TimeEnd,
			Location:     doc.Location,
			Status:       model.EventStatus(doc.Status),
			Requirements: doc.Requirements,
		}}
		for i, row := range doc.Roster {
			req := model.JoinRequest{Name: strings.TrimSpace(row.Name), Email: strings.TrimSpace(row.Email)}
			if user := strings.TrimSpace(row.User); user != "" {
				req.Identity = model.ByAccount{Ref: user}
			}
			if err := req.Validate(); err != nil {
				return nil, &Error{Path: fmt.Sprintf("%s.roster[%d]", path, i), Message: err.Error(), Pos: events.Value().Pos()}
			}
			entry.Roster = append(entry.Roster, req)
		}
		out.Events = append(out.Events, entry)
	}

	return out, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error, path string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Path: path, Message: err.Error()}
	}
	first := errs[0]
	e := &Error{Path: path, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
