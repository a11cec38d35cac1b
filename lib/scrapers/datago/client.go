package datago

import (
	"context"
	"net/http/cookiejar"
	"net/url"
	"time"

	"datago-harvester/lib/restyutil"
	"datago-harvester/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/datago")

const (
	DefaultBaseURL = "https://www.data.go.kr"

	listPath     = "/tcs/dss/selectDataSetList.do"
	lookupPath   = "/tcs/dss/selectFileDataDownload.do"
	downloadPath = "/cmm/cmm/fileDownload.do"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	dump *restyutil.FilesystemOutput
}

type ClientOptions struct {
	// BaseUrl defaults to the live portal; tests point it at a local server.
	BaseUrl string
	Timeout time.Duration
	// Dump, when set, receives the raw HTML of every scraped page.
	Dump *restyutil.FilesystemOutput
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", browserUserAgent)
	client.SetHeader("accept-language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	client.SetTimeout(opts.Timeout)

	telemetry.InstrumentResty(client, "scrapers/datago/http")

	c := &Client{
		BaseUrl: baseUrl,
		Http:    client,
		dump:    opts.Dump,
	}
	return c, nil
}

func (c *Client) dumpPage(id string, body []byte) {
	if c.dump == nil {
		return
	}
	c.dump.Write(id, body)
}

// DetailURLFor builds the canonical detail-page URL for a dataset id. It is
// the referer downloads use when an item was never seen on a list page.
func (c *Client) DetailURLFor(dataID string) string {
	return c.resolveURL("/data/" + dataID + "/fileData.do")
}

// resolveURL joins a scraped, possibly relative href onto the portal base.
func (c *Client) resolveURL(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return c.BaseUrl.ResolveReference(ref).String()
}
