package datago

// Item is one catalog entry of the open-data portal. It is created from a
// search-result page with the surface fields only, then enriched in place
// from the detail page. The JSON tags define the checkpoint file shape, so
// renames here are format changes.
type Item struct {
	DataID    string `json:"data_id"`
	Title     string `json:"title"`
	FullTitle string `json:"full_title,omitempty"`
	DetailURL string `json:"detail_url"`

	// independently sourced, possibly conflicting file-type hints,
	// consumed by ResolveExtension in priority order
	FormatTypes []string `json:"format_types"`
	TitleFormat string   `json:"title_format,omitempty"`
	MediaType   string   `json:"media_type,omitempty"`
	Extension   string   `json:"extension,omitempty"`

	HasDownloadBtn bool `json:"has_download_btn"`

	Provider         string   `json:"provider,omitempty"`
	Category         string   `json:"category,omitempty"`
	Keywords         []string `json:"keywords"`
	UpdateCycle      string   `json:"update_cycle,omitempty"`
	UpdateDate       string   `json:"update_date,omitempty"`
	RegisterDate     string   `json:"register_date,omitempty"`
	NextUpdateDate   string   `json:"next_update_date,omitempty"`
	Description      string   `json:"description,omitempty"`
	License          string   `json:"license,omitempty"`
	Department       string   `json:"department,omitempty"`
	ContactPhone     string   `json:"contact_phone,omitempty"`
	ProvisionType    string   `json:"provision_type,omitempty"`
	CollectionMethod string   `json:"collection_method,omitempty"`
	FileDataName     string   `json:"file_data_name,omitempty"`
	Note             string   `json:"note,omitempty"`

	// raw fragments of the detail page's download trigger
	FileID          string   `json:"file_id,omitempty"`
	FileDetailID    string   `json:"file_detail_id,omitempty"`
	DownloadParams  []string `json:"download_params,omitempty"`
	DownloadBtnText string   `json:"download_btn_text,omitempty"`

	// set by the lister, cleared once the detail page has been visited
	ListPageOnly bool `json:"list_page_only,omitempty"`
}

// DisplayName is the item's title, or a data-id placeholder when the title
// is missing. Used for progress output and the failure log.
func (it Item) DisplayName() string {
	if it.Title != "" {
		return it.Title
	}
	return "ID:" + it.DataID
}
