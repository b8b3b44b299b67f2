package enrollment

type Reason string

// Eligibility reasons, in the order they are checked.
const (
	ReasonNotAuthenticated   Reason = "NOT_AUTHENTICATED"
	ReasonInvalidRole        Reason = "INVALID_ROLE"
	ReasonCourseNotFound     Reason = "COURSE_NOT_FOUND"
	ReasonCourseNotPublished Reason = "COURSE_NOT_PUBLISHED"
	ReasonOwnCourse          Reason = "OWN_COURSE"
	ReasonAlreadyEnrolled    Reason = "ALREADY_ENROLLED"
	ReasonPaymentRequired    Reason = "PAYMENT_REQUIRED"
	ReasonEligible           Reason = "ELIGIBLE"
)

// Enrollment result reasons.
const (
	ReasonEnrolled            Reason = "ENROLLED"
	ReasonPaymentMissing      Reason = "PAYMENT_MISSING"
	ReasonPaymentNotFound     Reason = "PAYMENT_NOT_FOUND"
	ReasonPaymentNotCompleted Reason = "PAYMENT_NOT_COMPLETED"
	ReasonPaymentMismatch     Reason = "PAYMENT_MISMATCH"
	ReasonEnrollmentFailed    Reason = "ENROLLMENT_FAILED"
	ReasonInternalError       Reason = "INTERNAL_ERROR"
)

var messages = map[Reason]string{
	ReasonNotAuthenticated:    "You must be signed in to enroll.",
	ReasonInvalidRole:         "Your account type cannot enroll in courses.",
	ReasonCourseNotFound:      "Course not found.",
	ReasonCourseNotPublished:  "This course is not available yet.",
	ReasonOwnCourse:           "You cannot enroll in your own course.",
	ReasonAlreadyEnrolled:     "You are already enrolled in this course.",
	ReasonPaymentRequired:     "This course requires payment.",
	ReasonEligible:            "You can enroll in this course.",
	ReasonEnrolled:            "Enrolled successfully.",
	ReasonPaymentMissing:      "Payment information is missing.",
	ReasonPaymentNotFound:     "Payment not found.",
	ReasonPaymentNotCompleted: "Payment has not been completed.",
	ReasonPaymentMismatch:     "Payment data does not match this enrollment.",
	ReasonEnrollmentFailed:    "Enrollment could not be created; it has been logged for review.",
	ReasonInternalError:       "Something went wrong, please try again later.",
}

// Message returns the human-readable text for the reason.
func (r Reason) Message() string {
	if msg, ok := messages[r]; ok {
		return msg
	}
	return string(r)
}

type Eligibility struct {
	CanEnroll bool   `json:"can_enroll"`
	Reason    Reason `json:"reason"`
}

func eligible() Eligibility            { return Eligibility{CanEnroll: true, Reason: ReasonEligible} }
func denied(reason Reason) Eligibility { return Eligibility{Reason: reason} }

// Result is the outcome of an enrollment attempt.
type Result struct {
	Success         bool   `json:"success"`
	EnrollmentID    string `json:"enrollment_id,omitempty"`
	Message         string `json:"message"`
	Reason          Reason `json:"reason"`
	RequiresPayment bool   `json:"requires_payment,omitempty"`
	// AlreadyEnrolled is set when the enrollment existed before this call.
	AlreadyEnrolled bool `json:"already_enrolled,omitempty"`
}

// Succeeded returns a successful Result for enrollmentID.
func Succeeded(enrollmentID string, alreadyEnrolled bool) Result {
	return Result{
		Success:         true,
		EnrollmentID:    enrollmentID,
		Message:         ReasonEnrolled.Message(),
		Reason:          ReasonEnrolled,
		AlreadyEnrolled: alreadyEnrolled,
	}
}

// Failed returns a failed Result carrying reason and its message.
func Failed(reason Reason) Result {
	return Result{
		Message:         reason.Message(),
		Reason:          reason,
		RequiresPayment: reason == ReasonPaymentRequired,
	}
}
