package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/payment/payu"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/okdriver/okdriver-backend/pkg/req"
)

// maxCallbackBody PayU присылает несколько десятков полей
const maxCallbackBody = 64 << 10

// PaymentHandler обработчик для платежей PayU
type PaymentHandler struct {
	payments *service.PaymentService
	log      *logger.Logger
}

// NewPaymentHandler создает новый обработчик платежей
func NewPaymentHandler(payments *service.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, log: log}
}

// CreateOrder подписанная форма оплаты для владельца из токена
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	tenant, err := tenantOf(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	body, err := req.HandleBody[service.CreateOrderInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}

	order, err := h.payments.CreateOrder(c.Request.Context(), tenant, *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	created(c, order)
}

// Callback возврат с PayU (surl/furl) для маршрута заданного типа владельца.
// Браузер с Accept: text/html получает 302 на страницу сайта.
func (h *PaymentHandler) Callback(kind domain.TenantKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := callbackForm(c)
		if err != nil {
			fail(c, err, h.log)
			return
		}

		result, err := h.payments.HandleCallback(c.Request.Context(), kind, payu.CallbackFromForm(form))
		if err != nil {
			fail(c, err, h.log)
			return
		}

		if wantsHTML(c) {
			c.Redirect(http.StatusFound, result.RedirectURL)
			return
		}
		ok(c, result)
	}
}

// callbackForm принимает form-urlencoded или плоский JSON
func callbackForm(c *gin.Context) (url.Values, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCallbackBody)

	if strings.HasPrefix(c.ContentType(), "application/json") {
		return jsonForm(c.Request.Body)
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, domain.E(domain.KindValidation, "malformed callback body", err)
	}
	return c.Request.PostForm, nil
}

// jsonForm числа сохраняют исходную запись, чтобы сумма попала в хеш как есть
func jsonForm(body io.Reader) (url.Values, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, domain.E(domain.KindValidation, "malformed callback body", err)
	}
	form := make(url.Values, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case nil:
		case string:
			form.Set(k, v)
		case json.Number:
			form.Set(k, v.String())
		case bool:
			form.Set(k, strconv.FormatBool(v))
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, domain.E(domain.KindValidation, "malformed callback field "+k, err)
			}
			form.Set(k, string(encoded))
		}
	}
	return form, nil
}

func wantsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}

// List платежи для администратора с фильтрами tenant_kind, tenant_id, status, limit
func (h *PaymentHandler) List(c *gin.Context) {
	filter := repository.PaymentFilter{
		TenantKind: domain.TenantKind(strings.ToUpper(c.Query("tenant_kind"))),
		Status:     domain.PaymentStatus(strings.ToUpper(c.Query("status"))),
	}
	if filter.TenantKind != "" && !filter.TenantKind.Valid() {
		fail(c, domain.Validation("invalid tenant_kind"), h.log)
		return
	}
	if raw := c.Query("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			fail(c, domain.Validation("invalid tenant_id"), h.log)
			return
		}
		filter.TenantID = &id
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	filter.Limit = limit

	payments, err := h.payments.List(c.Request.Context(), filter)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, payments)
}
