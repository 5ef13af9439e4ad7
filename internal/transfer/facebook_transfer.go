package transfer

type FacebookUploadStart struct {
	UploadSessionID string `json:"upload_session_id"`
	VideoID         string `json:"video_id"`
	StartOffset     string `json:"start_offset"`
	EndOffset       string `json:"end_offset"`
}

type FacebookUploadTransfer struct {
	StartOffset string `json:"start_offset"`
	EndOffset   string `json:"end_offset"`
}

type FacebookUploadFinish struct {
	Success bool `json:"success"`
}

type FacebookVideoStatus struct {
	ID     string `json:"id"`
	Status struct {
		VideoStatus     string `json:"video_status"`
		ProcessingPhase struct {
			Status string `json:"status"`
		} `json:"processing_phase"`
	} `json:"status"`
}

type FacebookPostList struct {
	Data []struct {
		ID          string `json:"id"`
		Attachments struct {
			Data []struct {
				Target struct {
					ID string `json:"id"`
				} `json:"target"`
			} `json:"data"`
		} `json:"attachments"`
	} `json:"data"`
}

type FacebookVideoList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type FacebookPage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
