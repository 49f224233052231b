package model

import (
	"time"
)

// Category 表示作品分类（如「书籍」「电影」「音乐」）。
type Category struct {
	ID   uint   `gorm:"primaryKey"`                             // 分类 ID
	Name string `gorm:"type:varchar(256);uniqueIndex;not null"` // 分类名称（唯一）
	Slug string `gorm:"type:varchar(50);uniqueIndex;not null"`  // URL 标识（唯一）
}

// Genre 表示作品体裁（如「科幻」「摇滚」）。
type Genre struct {
	ID   uint   `gorm:"primaryKey"`                             // 体裁 ID
	Name string `gorm:"type:varchar(256);uniqueIndex;not null"` // 体裁名称（唯一）
	Slug string `gorm:"type:varchar(50);uniqueIndex;not null"`  // URL 标识（唯一）
}

// Title 表示一部作品。
//
// 作品与体裁是多对多关系（通过 title_genres 表关联），
// 与分类是多对一关系。评分不落库，查询时按评论分数聚合计算。
type Title struct {
	ID          uint      `gorm:"primaryKey"` // 作品 ID
	Name        string    `gorm:"type:varchar(256);not null;index"`
	Year        int       `gorm:"not null;index"` // 发行年份（不得晚于当前年份）
	Description string    `gorm:"type:text"`
	CategoryID  *uint     // 所属分类 ID（分类删除后置空）
	Category    *Category `gorm:"constraint:OnDelete:SET NULL"`
	Genres      []Genre   `gorm:"many2many:title_genres"` // 关联的体裁列表
}

// Review 表示用户对作品的评论与打分。
//
// (AuthorID, TitleID) 上的联合唯一索引保证一个用户对同一作品
// 至多只能写一条评论，并发写入由存储层裁决。
type Review struct {
	ID       uint      `gorm:"primaryKey"` // 评论 ID
	Text     string    `gorm:"type:text;not null"`
	Score    int       `gorm:"not null"`                               // 打分 1..10
	AuthorID uint      `gorm:"not null;uniqueIndex:uniq_author_title"` // 作者 ID
	Author   User      `gorm:"foreignKey:AuthorID"`                    // 作者
	TitleID  uint      `gorm:"not null;uniqueIndex:uniq_author_title"` // 作品 ID
	Title    Title     `gorm:"foreignKey:TitleID;constraint:OnDelete:CASCADE"`
	PubDate  time.Time `gorm:"autoCreateTime;index"` // 发布时间
}

// Comment 表示针对某条评论的跟帖。
type Comment struct {
	ID       uint      `gorm:"primaryKey"` // 跟帖 ID
	Text     string    `gorm:"type:text;not null"`
	AuthorID uint      `gorm:"not null"` // 作者 ID
	Author   User      `gorm:"foreignKey:AuthorID"`
	ReviewID uint      `gorm:"not null;index"` // 所属评论 ID
	Review   Review    `gorm:"foreignKey:ReviewID;constraint:OnDelete:CASCADE"`
	PubDate  time.Time `gorm:"autoCreateTime;index"` // 发布时间
}
