package http

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/services"
)

// Receipt uploads are small images; anything larger is misuse.
const maxUploadBytes = 10 << 20

// errUploadTooLarge marks a request body over maxUploadBytes. Handlers
// turn it into 413 instead of a generic 400.
var errUploadTooLarge = errors.New("request body exceeds upload limit")

// expenseForm is the parsed shape of an expense create/update request.
// File is nil when no receipt was attached.
type expenseForm struct {
	Input    services.ExpenseInput
	File     multipart.File
	Filename string
}

func (f *expenseForm) closeFile() {
	if f.File != nil {
		f.File.Close()
	}
}

// parseExpenseForm accepts multipart (with optional "receipt" file part)
// and plain form encodings. Field names: description, amount, date,
// category_id. The body is capped at maxUploadBytes; ParseMultipartForm's
// argument only bounds in-memory buffering, so the hard limit comes from
// MaxBytesReader.
func parseExpenseForm(w http.ResponseWriter, r *http.Request) (*expenseForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var form *expenseForm
	if contentType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			if isBodyTooLarge(err) {
				return nil, errUploadTooLarge
			}
			return nil, fmt.Errorf("invalid multipart form")
		}
		form = &expenseForm{}
		if file, header, err := r.FormFile("receipt"); err == nil {
			form.File = file
			form.Filename = header.Filename
		}
	} else {
		if err := r.ParseForm(); err != nil {
			if isBodyTooLarge(err) {
				return nil, errUploadTooLarge
			}
			return nil, fmt.Errorf("invalid form")
		}
		form = &expenseForm{}
	}

	desc := sanitizeInput(r.Form.Get("description"))

	paise, err := core.ParseDecimalToPaise(strings.TrimSpace(r.Form.Get("amount")))
	if err != nil {
		form.closeFile()
		return nil, err
	}

	date, err := time.Parse("2006-01-02", strings.TrimSpace(r.Form.Get("date")))
	if err != nil {
		form.closeFile()
		return nil, core.ErrInvalidDate
	}

	categoryID, err := strconv.ParseInt(strings.TrimSpace(r.Form.Get("category_id")), 10, 64)
	if err != nil || categoryID <= 0 {
		form.closeFile()
		return nil, fmt.Errorf("invalid category_id")
	}

	form.Input = services.ExpenseInput{
		Description: desc,
		Amount:      core.Money{Paise: paise},
		Date:        date,
		CategoryID:  categoryID,
	}
	return form, nil
}

func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// budgetPayload is the JSON body for budget upsert and update.
type budgetPayload struct {
	CategoryID int64  `json:"category_id"`
	Month      string `json:"month"`
	Amount     string `json:"amount"`
}

func (p budgetPayload) amountPaise() (core.Money, error) {
	paise, err := core.ParseDecimalToPaise(strings.TrimSpace(p.Amount))
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Paise: paise}, nil
}

// credentialsPayload is the JSON body for register and login.
type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (p credentialsPayload) validate() error {
	if strings.TrimSpace(p.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if p.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}
