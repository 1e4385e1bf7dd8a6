package response

import (
	"net/http"

	"kidledger/internal/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeConflict      = 409
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// Business codes, one per failure kind. Values are part of the wire contract.
const (
	CodeUserNotFound        = 1001
	CodeWalletNotFound      = 1002
	CodeInvalidAmount       = 1003
	CodeInsufficientBalance = 1004
	CodeInsufficientCoins   = 1005
	CodeAlreadyAssigned     = 1006
	CodeAgeIneligible       = 1007
	CodeMissionInactive     = 1008
	CodeNotYetCompleted     = 1009
	CodeAlreadyClaimed      = 1010
	CodeInvalidProgress     = 1011
	CodeMissionNotFound     = 1012
	CodeMissionNotActive    = 1013
	CodeTransactionNotFound = 1014
	CodeNotPending          = 1015
	CodeAllowanceNotFound   = 1016
)

type kindMapping struct {
	code   int
	status int
}

var kindMappings = map[apperr.Kind]kindMapping{
	apperr.KindUserNotFound:        {CodeUserNotFound, http.StatusNotFound},
	apperr.KindWalletNotFound:      {CodeWalletNotFound, http.StatusNotFound},
	apperr.KindInvalidAmount:       {CodeInvalidAmount, http.StatusBadRequest},
	apperr.KindInsufficientBalance: {CodeInsufficientBalance, http.StatusUnprocessableEntity},
	apperr.KindInsufficientCoins:   {CodeInsufficientCoins, http.StatusUnprocessableEntity},
	apperr.KindUnauthorized:        {CodeForbidden, http.StatusForbidden},
	apperr.KindAlreadyAssigned:     {CodeAlreadyAssigned, http.StatusConflict},
	apperr.KindAgeIneligible:       {CodeAgeIneligible, http.StatusUnprocessableEntity},
	apperr.KindMissionInactive:     {CodeMissionInactive, http.StatusUnprocessableEntity},
	apperr.KindNotYetCompleted:     {CodeNotYetCompleted, http.StatusConflict},
	apperr.KindAlreadyClaimed:      {CodeAlreadyClaimed, http.StatusConflict},
	apperr.KindInvalidProgress:     {CodeInvalidProgress, http.StatusBadRequest},
	apperr.KindMissionNotFound:     {CodeMissionNotFound, http.StatusNotFound},
	apperr.KindMissionNotActive:    {CodeMissionNotActive, http.StatusConflict},
	apperr.KindTransactionNotFound: {CodeTransactionNotFound, http.StatusNotFound},
	apperr.KindNotPending:          {CodeNotPending, http.StatusConflict},
	apperr.KindAllowanceNotFound:   {CodeAllowanceNotFound, http.StatusNotFound},
	apperr.KindInvalidArgument:     {CodeParamError, http.StatusBadRequest},
	apperr.KindConflict:            {CodeConflict, http.StatusConflict},
}

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    apperr.Kind `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, status, code int, message string) {
	c.JSON(status, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    CodeParamError,
		Message: message,
		Kind:    apperr.KindInvalidArgument,
	})
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}

// FromError writes err using the code and status of its kind. Anything
// that is not a domain failure is reported as a server error without its text.
func FromError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	mapping, ok := kindMappings[kind]
	if !ok {
		c.JSON(http.StatusInternalServerError, Response{
			Code:    CodeServerError,
			Message: "internal server error",
			Kind:    apperr.KindInternal,
		})
		return
	}
	c.JSON(mapping.status, Response{
		Code:    mapping.code,
		Message: err.Error(),
		Kind:    kind,
	})
}

// CodeFor returns the business code and HTTP status for a kind.
func CodeFor(kind apperr.Kind) (code int, status int) {
	if m, ok := kindMappings[kind]; ok {
		return m.code, m.status
	}
	return CodeServerError, http.StatusInternalServerError
}
