package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired     ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid      ErrCode = "TOKEN_INVALID"
	ErrTokenExpired      ErrCode = "TOKEN_EXPIRED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrExamCodeInvalid      ErrCode = "EXAM_CODE_INVALID"
	ErrNoActiveAttempt      ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrAttemptPhaseConflict ErrCode = "ATTEMPT_PHASE_CONFLICT"
	ErrUnknownQuestion      ErrCode = "UNKNOWN_QUESTION"
	ErrUnknownOption        ErrCode = "UNKNOWN_OPTION"
	ErrAnswerShapeMismatch  ErrCode = "ANSWER_SHAPE_MISMATCH"
	ErrSubmissionFailed     ErrCode = "SUBMISSION_FAILED"
	ErrSubmissionRejected   ErrCode = "SUBMISSION_REJECTED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	case ErrExamCodeInvalid:
		return "Kode ujian tidak ditemukan. Periksa kembali kode Anda."
	case ErrNoActiveAttempt:
		return "Tidak ada sesi ujian yang sedang berjalan."
	case ErrAttemptPhaseConflict:
		return "Tindakan ini tidak diperbolehkan pada tahap sesi saat ini."
	case ErrUnknownQuestion:
		return "Pertanyaan tidak ditemukan pada ujian ini."
	case ErrUnknownOption:
		return "Pilihan jawaban tidak valid untuk pertanyaan ini."
	case ErrAnswerShapeMismatch:
		return "Bentuk jawaban tidak sesuai dengan jenis pertanyaan."
	case ErrSubmissionFailed:
		return "Pengiriman jawaban gagal. Silakan coba lagi."
	case ErrSubmissionRejected:
		return "Pengiriman jawaban ditolak oleh server pusat."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
