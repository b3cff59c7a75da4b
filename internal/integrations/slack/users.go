package slackbot

import (
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

const userCacheTTL = 5 * time.Minute

var userCache struct {
	sync.Mutex
	users     []slack.User
	fetchedAt time.Time
}

func getCachedUsers(api *slack.Client) ([]slack.User, error) {
	userCache.Lock()
	defer userCache.Unlock()

	if userCache.users != nil && time.Since(userCache.fetchedAt) < userCacheTTL {
		return userCache.users, nil
	}

	users, err := api.GetUsers()
	if err != nil {
		return nil, err
	}
	userCache.users = users
	userCache.fetchedAt = time.Now()
	return users, nil
}

// displayName picks the name a status is saved under: the profile display
// name, then the real name, then the handle. Unknown users keep their id.
func displayName(users []slack.User, userID string) string {
	for _, u := range users {
		if u.ID != userID {
			continue
		}
		for _, n := range []string{u.Profile.DisplayName, u.RealName, u.Name} {
			if n = strings.TrimSpace(n); n != "" {
				return n
			}
		}
	}
	return userID
}
