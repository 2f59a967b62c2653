package crm

// CreateContactRequest は連絡先作成APIのリクエストボディ。
type CreateContactRequest struct {
	Email     string `json:"email" binding:"notblank"`
	FirstName string `json:"firstName" binding:"notblank"`
	LastName  string `json:"lastName" binding:"notblank"`
}

// createContactPayload はCRMに送信する連絡先作成リクエスト。
type createContactPayload struct {
	Associations []any             `json:"associations"`
	Properties   map[string]string `json:"properties"`
}

// newCreateContactPayload はリクエストをCRMのプロパティ名に変換する。
// 関連付けは未対応のため常に空配列を送る。
func newCreateContactPayload(req CreateContactRequest) createContactPayload {
	return createContactPayload{
		Associations: []any{},
		Properties: map[string]string{
			"email":     req.Email,
			"firstname": req.FirstName,
			"lastname":  req.LastName,
		},
	}
}

// Contact はCRMの連絡先オブジェクト。
type Contact struct {
	ID         string            `json:"id"`
	Properties ContactProperties `json:"properties"`
	CreatedAt  string            `json:"createdAt"`
	UpdatedAt  string            `json:"updatedAt"`
	Archived   bool              `json:"archived"`
}

// ContactProperties は連絡先のプロパティ。CRMが返す主要な項目のみ保持する。
type ContactProperties struct {
	CreateDate       string `json:"createdate,omitempty"`
	Email            string `json:"email,omitempty"`
	FirstName        string `json:"firstname,omitempty"`
	LastName         string `json:"lastname,omitempty"`
	ObjectID         string `json:"hs_object_id,omitempty"`
	LastModifiedDate string `json:"lastmodifieddate,omitempty"`
	LifecycleStage   string `json:"lifecyclestage,omitempty"`
	EmailDomain      string `json:"hs_email_domain,omitempty"`
}

// ListContactsResponse は連絡先一覧APIのレスポンス。
type ListContactsResponse struct {
	Results []Contact `json:"results"`
	Paging  *Paging   `json:"paging,omitempty"`
}

// Paging はページングの情報。
type Paging struct {
	Next *PagingNext `json:"next,omitempty"`
}

// PagingNext は次ページのカーソル。
type PagingNext struct {
	After string `json:"after"`
	Link  string `json:"link,omitempty"`
}

// ListParams は連絡先一覧の取得条件。ゼロ値の項目は送信しない。
type ListParams struct {
	Limit int
	After string
}

// AuthResponse は認可コード交換のレスポンス。
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}
