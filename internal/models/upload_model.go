package models

type UploadPhase string

const (
	UploadPhaseSingle   UploadPhase = "single"
	UploadPhaseStart    UploadPhase = "start"
	UploadPhaseTransfer UploadPhase = "transfer"
	UploadPhaseFinish   UploadPhase = "finish"
)

type UploadState string

const (
	UploadStateIdle           UploadState = "idle"
	UploadStateSessionStarted UploadState = "session_started"
	UploadStateTransferring   UploadState = "transferring"
	UploadStateFinished       UploadState = "finished"
	UploadStateFailed         UploadState = "failed"
)

// UploadSession tracks one resumable transfer. Offsets are byte positions in
// the asset; platforms that dictate the next window set StartOffset and
// EndOffset from their responses.
type UploadSession struct {
	AssetPath        string
	Platform         string
	Phase            UploadPhase
	State            UploadState
	SessionID        string
	RemoteID         string
	BytesTransferred int64
	ChunkSize        int64
	TotalSize        int64
	StartOffset      int64
	EndOffset        int64
	ChunkIndex       int
	MIME             string
}
