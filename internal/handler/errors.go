package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"schoolattendance/internal/attendance"
	"schoolattendance/internal/auth"
	"schoolattendance/internal/directory"
	"schoolattendance/internal/model"
	"schoolattendance/internal/observability"
	"schoolattendance/internal/photos"
)

var registerOnce sync.Once

// registerValidators names fields by their json/form tag and adds the date and
// attendance_status rules.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.Split(f.Tag.Get(tag), ",")[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
		_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
			_, err := model.ParseDate(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
			return model.Status(fl.Field().String()).Valid()
		})
	})
}

// fieldErrors maps a field path such as "attendances.0.status" to its messages.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

func (f fieldErrors) first() string {
	for _, msgs := range f {
		if len(msgs) > 0 {
			return msgs[0]
		}
	}
	return "The given data was invalid."
}

func unprocessable(c *gin.Context, errs fieldErrors) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"message": errs.first(), "errors": errs})
}

// bindFailed answers 422 for a failed ShouldBind call.
func bindFailed(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"message": "The given data was invalid.", "errors": fieldErrors{}})
		return
	}
	errs := fieldErrors{}
	for _, fe := range verrs {
		field := fieldPath(fe.Namespace())
		errs.add(field, message(field, fe))
	}
	unprocessable(c, errs)
}

// fieldPath turns "bulkRequest.attendances[2].status" into "attendances.2.status".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}
	namespace = strings.TrimPrefix(namespace, "PageQuery.")
	namespace = strings.ReplaceAll(namespace, "[", ".")
	return strings.ReplaceAll(namespace, "]", "")
}

func message(field string, fe validator.FieldError) string {
	label := strings.ReplaceAll(field[strings.LastIndex(field, ".")+1:], "_", " ")
	switch fe.Tag() {
	case "required":
		switch field {
		case "name":
			return "Student name is required"
		case "student_id":
			return "Student ID is required"
		case "attendances":
			return "At least one attendance record is required"
		}
		return fmt.Sprintf("The %s field is required.", label)
	case "attendance_status":
		if strings.HasPrefix(field, "attendances.") {
			return "Status must be present, absent, or late"
		}
		return fmt.Sprintf("The selected %s is invalid.", label)
	case "date":
		return fmt.Sprintf("The %s field must be a valid date.", label)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", label)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("The %s field must not be greater than %s characters.", label, fe.Param())
		}
		return fmt.Sprintf("The %s field must not be greater than %s.", label, fe.Param())
	case "min":
		switch fe.Kind() {
		case reflect.Slice:
			return "At least one attendance record is required"
		case reflect.String:
			return fmt.Sprintf("The %s field must be at least %s characters.", label, fe.Param())
		}
		return fmt.Sprintf("The %s field must be at least %s.", label, fe.Param())
	default:
		return fmt.Sprintf("The %s field is invalid.", label)
	}
}

// fail maps a service error to its HTTP response.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Student not found."})
	case errors.Is(err, attendance.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Attendance not found."})
	case errors.Is(err, auth.ErrUserNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "User not found."})
	case errors.Is(err, attendance.ErrDuplicateDay):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, directory.ErrDuplicateStudentID):
		unprocessable(c, fieldErrors{"student_id": {"This student ID already exists"}})
	case errors.Is(err, auth.ErrEmailTaken):
		unprocessable(c, fieldErrors{"email": {"The email has already been taken."}})
	case errors.Is(err, photos.ErrNotImage):
		unprocessable(c, fieldErrors{"photo": {"The photo field must be an image."}})
	case errors.Is(err, directory.ErrPhotoTooLarge):
		unprocessable(c, fieldErrors{"photo": {fmt.Sprintf("The photo field must not be greater than %d kilobytes.", h.maxPhotoBytes/1024)}})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": err.Error()})
	default:
		h.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err))
		observability.CaptureErr(err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
