package payu

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotConfigured нет ключа или соли мерчанта
var ErrNotConfigured = errors.New("payment gateway not configured")

// StatusSuccess статус успешной оплаты в колбэке
const StatusSuccess = "success"

// Config параметры мерчанта
type Config struct {
	Key        string
	Salt       string
	BaseURL    string
	SkipVerify bool
	Production bool
}

// Gateway строит заказы и проверяет колбэки PayU
type Gateway struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Gateway {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gateway{cfg: cfg, now: time.Now}
}

// Configured заданы ли ключ и соль
func (g *Gateway) Configured() bool {
	return g.cfg.Key != "" && g.cfg.Salt != ""
}

// OrderInput данные для формы оплаты
type OrderInput struct {
	Amount      decimal.Decimal
	ProductInfo string
	FirstName   string
	Email       string
	Phone       string
	SuccessURL  string
	FailureURL  string
	UDF         [UDFCount]string
}

// Order адрес и поля формы, которую клиент отправляет на PayU
type Order struct {
	Action string            `json:"action"`
	TxnID  string            `json:"txnid"`
	Amount string            `json:"amount"`
	Params map[string]string `json:"params"`
}

// CreateOrder генерирует txnid и подписывает параметры
func (g *Gateway) CreateOrder(in OrderInput) (Order, error) {
	if !g.Configured() {
		return Order{}, ErrNotConfigured
	}

	fields := RequestFields{
		Key:         g.cfg.Key,
		TxnID:       randomTxnID(g.now()),
		Amount:      FormatAmount(in.Amount),
		ProductInfo: in.ProductInfo,
		FirstName:   in.FirstName,
		Email:       in.Email,
		UDF:         in.UDF,
	}

	params := map[string]string{
		"key":         fields.Key,
		"txnid":       fields.TxnID,
		"amount":      fields.Amount,
		"productinfo": fields.ProductInfo,
		"firstname":   fields.FirstName,
		"email":       fields.Email,
		"phone":       in.Phone,
		"surl":        in.SuccessURL,
		"furl":        in.FailureURL,
		"hash":        RequestHash(fields, g.cfg.Salt),
	}
	for i, v := range in.UDF {
		params[udfName(i)] = v
	}

	return Order{
		Action: g.cfg.BaseURL + "/_payment",
		TxnID:  fields.TxnID,
		Amount: fields.Amount,
		Params: params,
	}, nil
}

// Callback поля, которые PayU присылает на surl/furl
type Callback struct {
	Status      string           `json:"status"`
	TxnID       string           `json:"txnid"`
	Amount      string           `json:"amount"`
	ProductInfo string           `json:"productinfo"`
	FirstName   string           `json:"firstname"`
	Email       string           `json:"email"`
	Phone       string           `json:"phone"`
	Hash        string           `json:"hash"`
	MihPayID    string           `json:"mihpayid"`
	Mode        string           `json:"mode"`
	Error       string           `json:"error_Message"`
	UDF         [UDFCount]string `json:"-"`
}

// Succeeded статус success без учета регистра
func (c Callback) Succeeded() bool {
	return strings.EqualFold(strings.TrimSpace(c.Status), StatusSuccess)
}

// CallbackFromForm разбирает form-urlencoded или плоский JSON, приведенный к url.Values
func CallbackFromForm(form url.Values) Callback {
	cb := Callback{
		Status:      form.Get("status"),
		TxnID:       form.Get("txnid"),
		Amount:      form.Get("amount"),
		ProductInfo: form.Get("productinfo"),
		FirstName:   form.Get("firstname"),
		Email:       form.Get("email"),
		Phone:       form.Get("phone"),
		Hash:        form.Get("hash"),
		MihPayID:    form.Get("mihpayid"),
		Mode:        form.Get("mode"),
		Error:       form.Get("error_Message"),
	}
	for i := range cb.UDF {
		cb.UDF[i] = form.Get(udfName(i))
	}
	return cb
}

// Verification итог проверки подписи
type Verification struct {
	OK       bool
	Bypassed bool
	Reason   string
}

// Verify сверяет обратную подпись. Вне production при SkipVerify проверка пропускается.
func (g *Gateway) Verify(cb Callback) (Verification, error) {
	if !g.cfg.Production && g.cfg.SkipVerify {
		return Verification{OK: true, Bypassed: true, Reason: "verification skipped"}, nil
	}
	if !g.Configured() {
		return Verification{}, ErrNotConfigured
	}
	if cb.Hash == "" {
		return Verification{Reason: "missing hash"}, nil
	}

	amount, err := NormalizeAmount(cb.Amount)
	if err != nil {
		return Verification{Reason: "hash mismatch"}, nil
	}

	expected := ResponseHash(ResponseFields{
		Status:      cb.Status,
		TxnID:       cb.TxnID,
		Amount:      amount,
		ProductInfo: cb.ProductInfo,
		FirstName:   cb.FirstName,
		Email:       cb.Email,
		UDF:         cb.UDF,
	}, g.cfg.Key, g.cfg.Salt)

	if !HashEqual(expected, cb.Hash) {
		return Verification{Reason: "hash mismatch"}, nil
	}
	return Verification{OK: true}, nil
}

func udfName(i int) string {
	return "udf" + strconv.Itoa(i+1)
}
