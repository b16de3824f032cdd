package instagram_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/instagent/instagent/pkg/instagram"
)

func testClient(baseURL string) *instagram.Client {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	client, err := instagram.NewClient(&instagram.Config{
		Username:           "tester",
		SessionID:          "test-session",
		CSRFToken:          "test-csrf",
		DeviceID:           "android-test",
		BaseURL:            baseURL,
		UserAgent:          "test-agent",
		MinRequestInterval: time.Millisecond,
		RequestTimeout:     5 * time.Second,
		Logger:             log,
	})
	Expect(err).NotTo(HaveOccurred())
	return client
}

var _ = Describe("Client", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		requests []*http.Request
		forms    []string
		respond  func(w http.ResponseWriter, r *http.Request)
	)

	BeforeEach(func() {
		ctx = context.Background()
		requests = nil
		forms = nil
		respond = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"ok"}`))
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.ParseForm()).To(Succeed())
			requests = append(requests, r)
			forms = append(forms, r.PostForm.Encode())
			respond(w, r)
		}))
		DeferCleanup(server.Close)
	})

	Describe("authentication", func() {
		It("sends the session cookie and CSRF token on every request", func() {
			client := testClient(server.URL)
			Expect(client.Follow(ctx, 42)).To(Succeed())

			Expect(requests).To(HaveLen(1))
			req := requests[0]
			Expect(req.Method).To(Equal(http.MethodPost))
			Expect(req.URL.Path).To(Equal("/friendships/create/42/"))
			Expect(req.Header.Get("X-CSRFToken")).To(Equal("test-csrf"))
			Expect(req.Header.Get("User-Agent")).To(Equal("test-agent"))

			cookie, err := req.Cookie("sessionid")
			Expect(err).NotTo(HaveOccurred())
			Expect(cookie.Value).To(Equal("test-session"))

			Expect(forms[0]).To(ContainSubstring("user_id=42"))
			Expect(forms[0]).To(ContainSubstring("device_id=android-test"))
		})
	})

	Describe("Followers", func() {
		It("decodes the users list", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"ok","users":[
					{"pk":100,"username":"alpha","follower_count":500,"following_count":300},
					{"pk":101,"username":"beta","is_private":true}
				]}`))
			}
			client := testClient(server.URL)

			users, err := client.Followers(ctx, 1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(2))
			Expect(users[0].ID).To(Equal(int64(100)))
			Expect(users[0].Username).To(Equal("alpha"))
			Expect(users[0].FollowerCount).To(Equal(500))
			Expect(users[1].IsPrivate).To(BeTrue())
			Expect(requests[0].URL.RawQuery).To(Equal("count=10"))
		})
	})

	Describe("Comment", func() {
		It("posts the comment text as a form field", func() {
			client := testClient(server.URL)
			Expect(client.Comment(ctx, "314159", "🔥")).To(Succeed())

			Expect(requests[0].URL.Path).To(Equal("/media/314159/comment/"))
			Expect(requests[0].PostForm.Get("comment_text")).To(Equal("🔥"))
		})
	})

	Describe("failure classification", func() {
		classify := func(err error) instagram.FailureKind {
			Expect(err).To(HaveOccurred())
			return instagram.Classify(err)
		}

		It("maps 429 to rate limited", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			}
			client := testClient(server.URL)
			Expect(classify(client.Follow(ctx, 42))).To(Equal(instagram.FailureRateLimited))
		})

		It("maps the slow-down message to rate limited", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"status":"fail","message":"Please wait a few minutes before you try again."}`))
			}
			client := testClient(server.URL)
			Expect(classify(client.Follow(ctx, 42))).To(Equal(instagram.FailureRateLimited))
		})

		It("maps challenge_required to challenge", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"status":"fail","message":"challenge_required"}`))
			}
			client := testClient(server.URL)
			Expect(classify(client.Follow(ctx, 42))).To(Equal(instagram.FailureChallenge))
		})

		It("maps login_required to auth even on a 200", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"fail","message":"login_required"}`))
			}
			client := testClient(server.URL)
			Expect(classify(client.Follow(ctx, 42))).To(Equal(instagram.FailureAuth))
		})

		It("maps 5xx to transient", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			client := testClient(server.URL)
			Expect(classify(client.Follow(ctx, 42))).To(Equal(instagram.FailureTransient))
		})

		It("maps transport failures to transient", func() {
			client := testClient(server.URL)
			server.Close()
			Expect(classify(client.Follow(ctx, 42))).To(Equal(instagram.FailureTransient))
		})

		It("leaves unrecognized responses unknown", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"status":"fail","message":"feedback_required"}`))
			}
			client := testClient(server.URL)
			Expect(classify(client.Follow(ctx, 42))).To(Equal(instagram.FailureUnknown))
		})
	})

	Describe("Classify", func() {
		It("treats plain errors as unknown", func() {
			Expect(instagram.Classify(errors.New("boom"))).To(Equal(instagram.FailureUnknown))
		})

		It("unwraps nested classified errors", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}
			client := testClient(server.URL)

			// The client wraps endpoint context around the classified
			// error; Classify must still find it.
			err := client.Unfollow(ctx, 7)
			Expect(err.Error()).To(ContainSubstring("unfollow user 7"))
			Expect(instagram.Classify(err)).To(Equal(instagram.FailureAuth))
		})
	})
})

var _ = Describe("Config", func() {
	It("requires a session id", func() {
		cfg := &instagram.Config{Username: "tester", MinRequestInterval: time.Second}
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("session id")))
	})

	It("fills transport defaults", func() {
		cfg := &instagram.Config{
			Username:           "tester",
			SessionID:          "s",
			MinRequestInterval: time.Second,
		}
		Expect(cfg.Validate()).To(Succeed())
		Expect(cfg.BaseURL).NotTo(BeEmpty())
		Expect(cfg.UserAgent).NotTo(BeEmpty())
		Expect(cfg.RequestTimeout).To(BeNumerically(">", 0))
	})
})
